// Package service 实现各 API 操作的业务逻辑。
// 本文件把管道的运行结束回调接到性能统计器与 Prometheus 采集器上。
package service

import (
	"time"

	"github.com/oriys/cirrus/internal/metrics"
	"github.com/oriys/cirrus/internal/pipeline"
)

// NewObserver 构建管道观察者：每次管道运行结束后记录性能统计与指标。
// perf 与 prom 均可为 nil，对应的记录被跳过。
func NewObserver(perf *metrics.PerfTracker, prom *metrics.Metrics) pipeline.Observer {
	return func(operation string, state pipeline.State, duration time.Duration, err error) {
		success := state == pipeline.StateComplete

		if perf != nil {
			perf.Record(operation, duration, success)
		}

		if prom != nil {
			status := "complete"
			if !success {
				status = "failed"
			}
			prom.RecordPipeline(operation, status, float64(duration.Milliseconds()))

			if perr, ok := err.(*pipeline.Error); ok {
				prom.RecordPipelineFailure(operation, string(perr.Phase))
			}
		}
	}
}
