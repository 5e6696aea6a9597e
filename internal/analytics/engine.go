// Package analytics 实现使用事件的批量聚合引擎。
// 引擎逐条处理批次内的事件：校验、落库指标记录、尽力更新洞察计数器。
// 单条事件的失败不影响同批其他事件，批次结束时
// 成功数与失败数之和恒等于批次大小。
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/cirrus/internal/domain"
	"github.com/oriys/cirrus/internal/metrics"
	"github.com/oriys/cirrus/internal/telemetry"
)

// Summary 是一个批次的处理结果。
type Summary struct {
	// Processed 是成功持久化的事件数
	Processed int `json:"processed"`
	// Failed 是被拒绝的事件数
	Failed int `json:"failed"`
}

// Engine 是使用事件聚合引擎。
// 引擎自身无状态，可被多个消费者协程共享。
type Engine struct {
	metricStore  domain.MetricRepository
	counterStore domain.CounterRepository
	collector    *metrics.Metrics
	tracer       trace.Tracer
	logger       *logrus.Logger
}

// NewEngine 创建聚合引擎。collector 可为 nil（禁用 Prometheus 指标时）。
func NewEngine(metricStore domain.MetricRepository, counterStore domain.CounterRepository, collector *metrics.Metrics, logger *logrus.Logger) *Engine {
	return &Engine{
		metricStore:  metricStore,
		counterStore: counterStore,
		collector:    collector,
		logger:       logger,
	}
}

// WithTracer 为每个批次开启追踪跨度并返回自身，便于链式构建。
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	e.tracer = tracer
	return e
}

// ProcessBatch 顺序处理一个批次的原始事件载荷。
// 每条记录独立成败：单条失败只计入 Failed，不中断批次。
func (e *Engine) ProcessBatch(ctx context.Context, payloads [][]byte) Summary {
	var summary Summary
	now := time.Now()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = telemetry.StartSpan(ctx, e.tracer, "analytics.process_batch",
			attribute.Int("batch.size", len(payloads)))
		defer span.End()
	}

	for _, payload := range payloads {
		if err := e.processRecord(ctx, payload, now); err != nil {
			summary.Failed++
			if span != nil {
				telemetry.RecordError(span, err)
			}
			e.logger.WithError(err).Warn("Usage event rejected")
			continue
		}
		summary.Processed++
	}

	if span != nil {
		span.SetAttributes(
			attribute.Int("batch.processed", summary.Processed),
			attribute.Int("batch.failed", summary.Failed),
		)
	}

	if e.collector != nil {
		e.collector.RecordBatch(summary.Processed, summary.Failed)
	}

	e.logger.WithFields(logrus.Fields{
		"batch_size": len(payloads),
		"processed":  summary.Processed,
		"failed":     summary.Failed,
	}).Info("Usage event batch processed")

	return summary
}

// processRecord 处理单条事件：载荷检查 → 反序列化 → 字段校验 →
// 指标落库 → 洞察计数器更新。只有指标落库失败会使整条记录失败；
// 计数器更新是尽力而为的，失败只记录日志。
func (e *Engine) processRecord(ctx context.Context, payload []byte, now time.Time) error {
	if len(payload) == 0 {
		return domain.ErrEmptyPayload
	}
	if len(payload) > domain.MaxEventPayloadSize {
		return domain.ErrPayloadTooLarge
	}

	event := &domain.UsageEvent{}
	if err := json.Unmarshal(payload, event); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	if err := event.Validate(now); err != nil {
		return err
	}

	if err := e.metricStore.InsertMetric(ctx, event.Record()); err != nil {
		return err
	}

	// 匿名事件没有可归属的开发者，跳过洞察更新
	if event.APIKey != domain.AnonymousAPIKey {
		if err := e.updateInsights(ctx, event); err != nil {
			e.logger.WithFields(logrus.Fields{
				"api_key_prefix": apiKeyPrefix(event.APIKey),
				"endpoint":       event.Endpoint,
			}).WithError(err).Warn("Insight counter update failed")
		}
	}

	return nil
}

// updateInsights 派生并递增事件命中的全部洞察计数器。
// 即使某个计数器更新失败也继续尝试其余计数器，最后返回第一个错误。
func (e *Engine) updateInsights(ctx context.Context, event *domain.UsageEvent) error {
	developerID := event.APIKey

	keys := []string{domain.EndpointUsageKey(event.Endpoint)}
	if event.StatusCode >= 400 {
		keys = append(keys, domain.ErrorCountKey(event.StatusCode))
	}
	if event.ResponseTimeMs > domain.SlowRequestThresholdMs {
		keys = append(keys, domain.SlowRequestKey)
	}
	keys = append(keys, domain.DailyUsageKey(event.Timestamp))

	var firstErr error
	for _, key := range keys {
		err := e.counterStore.IncrementCounter(ctx, developerID, key, 1)
		if e.collector != nil {
			e.collector.RecordInsightUpdate(err == nil)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// apiKeyPrefix 返回 API Key 的前 8 位，避免完整 Key 进入日志。
func apiKeyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
