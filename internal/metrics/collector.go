// Package metrics 提供 Prometheus 指标采集与进程内性能统计。
// 该包集中定义平台关键指标（管道请求、事件聚合、缓存、计数器更新），
// 便于在各模块复用并保持标签一致。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 封装平台运行时指标集合。
// 所有字段均为 Prometheus 指标类型，通过辅助方法更新指标值。
//
// 指标分类:
//   - 管道指标: 跟踪各操作的请求数量、耗时和失败阶段
//   - 聚合指标: 跟踪事件批次的处理与失败情况
//   - 缓存指标: 跟踪响应缓存的命中率
//   - 计数器指标: 跟踪洞察计数器的更新结果
type Metrics struct {
	// ========== 管道相关指标 ==========

	// PipelineRequestsTotal 管道请求总次数计数器
	// 标签: operation, status (complete/failed)
	PipelineRequestsTotal *prometheus.CounterVec

	// PipelineDuration 管道请求耗时直方图（单位：毫秒）
	// 标签: operation
	PipelineDuration *prometheus.HistogramVec

	// PipelineFailures 管道失败计数器，按失败阶段分类
	// 标签: operation, phase
	PipelineFailures *prometheus.CounterVec

	// ========== 事件聚合相关指标 ==========

	// EventsProcessed 聚合引擎成功处理的事件数
	EventsProcessed prometheus.Counter

	// EventsFailed 聚合引擎拒绝的事件数
	EventsFailed prometheus.Counter

	// EventBatchSize 批次大小直方图
	EventBatchSize prometheus.Histogram

	// ========== 缓存相关指标 ==========

	// CacheHits 响应缓存命中数
	CacheHits prometheus.Counter

	// CacheMisses 响应缓存未命中数
	CacheMisses prometheus.Counter

	// ========== 洞察计数器相关指标 ==========

	// InsightUpdates 洞察计数器更新次数
	// 标签: result (ok/error)
	InsightUpdates *prometheus.CounterVec

	// ========== 实体相关指标 ==========

	// ItemsTotal 存储中的条目总数
	ItemsTotal prometheus.Gauge
}

// NewMetrics 创建并注册所有指标。
// namespace 作为指标名前缀，避免与同进程的其他采集器冲突。
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PipelineRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Total number of pipeline requests",
		}, []string{"operation", "status"}),

		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_ms",
			Help:      "Pipeline request duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"operation"}),

		PipelineFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Total number of pipeline failures by phase",
		}, []string{"operation", "phase"}),

		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of usage events processed successfully",
		}),

		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of usage events rejected",
		}),

		EventBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_batch_size",
			Help:      "Number of events per consumed batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of response cache hits",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of response cache misses",
		}),

		InsightUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_updates_total",
			Help:      "Total number of insight counter updates",
		}, []string{"result"}),

		ItemsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Total number of items in the store",
		}),
	}
}

// RecordPipeline 记录一次管道运行结果。
func (m *Metrics) RecordPipeline(operation, status string, durationMs float64) {
	m.PipelineRequestsTotal.WithLabelValues(operation, status).Inc()
	m.PipelineDuration.WithLabelValues(operation).Observe(durationMs)
}

// RecordPipelineFailure 记录一次管道阶段失败。
func (m *Metrics) RecordPipelineFailure(operation, phase string) {
	m.PipelineFailures.WithLabelValues(operation, phase).Inc()
}

// RecordBatch 记录一个事件批次的处理结果。
func (m *Metrics) RecordBatch(processed, failed int) {
	m.EventsProcessed.Add(float64(processed))
	m.EventsFailed.Add(float64(failed))
	m.EventBatchSize.Observe(float64(processed + failed))
}

// RecordInsightUpdate 记录一次洞察计数器更新结果。
func (m *Metrics) RecordInsightUpdate(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.InsightUpdates.WithLabelValues(result).Inc()
}
