// Package telemetry 提供基于 OpenTelemetry 的分布式追踪。
// 本文件实现 logrus 钩子，把活跃跨度的追踪 ID 注入每条日志，
// 使日志与追踪可以互相检索。
package telemetry

import (
	"github.com/sirupsen/logrus"
)

// LogrusHook 把追踪 ID 附加到携带上下文的日志条目上。
type LogrusHook struct{}

// NewLogrusHook 创建日志钩子。
func NewLogrusHook() *LogrusHook {
	return &LogrusHook{}
}

// Levels 返回钩子生效的日志级别（全部）。
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在日志条目携带上下文且存在活跃跨度时注入 trace_id 字段。
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	if traceID := TraceIDFromContext(entry.Context); traceID != "" {
		entry.Data["trace_id"] = traceID
	}
	return nil
}
