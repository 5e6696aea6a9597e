package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/oriys/cirrus/internal/domain"
)

// fakeMetricStore 是内存实现的指标存储。
type fakeMetricStore struct {
	mu      sync.Mutex
	rows    []*domain.UsageMetric
	failErr error
}

func (s *fakeMetricStore) InsertMetric(ctx context.Context, m *domain.UsageMetric) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, m)
	return nil
}

func (s *fakeMetricStore) QueryMetrics(ctx context.Context, metricType string, from, to int64, limit int) ([]*domain.UsageMetric, error) {
	return nil, nil
}

func (s *fakeMetricStore) DeleteExpiredMetrics(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// fakeCounterStore 是内存实现的计数器存储。
type fakeCounterStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	failErr error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: make(map[string]int64)}
}

func (s *fakeCounterStore) IncrementCounter(ctx context.Context, developerID, insightKey string, delta int64) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[developerID+"|"+insightKey] += delta
	return nil
}

func (s *fakeCounterStore) GetCounter(ctx context.Context, developerID, insightKey string) (*domain.InsightCounter, error) {
	return nil, nil
}

func (s *fakeCounterStore) ListCounters(ctx context.Context, developerID string) ([]*domain.InsightCounter, error) {
	return nil, nil
}

func newTestEngine(metrics *fakeMetricStore, counters *fakeCounterStore) *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEngine(metrics, counters, nil, logger)
}

const testAPIKey = "abcdefghij1234567890"

// eventPayload 序列化一条合法事件。
func eventPayload(t *testing.T, mutate func(*domain.UsageEvent)) []byte {
	t.Helper()
	event := &domain.UsageEvent{
		MetricType:     "api_request",
		Timestamp:      time.Now().Unix(),
		Endpoint:       "/api/v1/items",
		Method:         "GET",
		APIKey:         testAPIKey,
		ResponseTimeMs: 42,
		StatusCode:     200,
	}
	if mutate != nil {
		mutate(event)
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestProcessBatchHappyPath(t *testing.T) {
	metrics := &fakeMetricStore{}
	counters := newFakeCounterStore()
	engine := newTestEngine(metrics, counters)

	batch := [][]byte{
		eventPayload(t, nil),
		eventPayload(t, nil),
		eventPayload(t, nil),
	}
	summary := engine.ProcessBatch(context.Background(), batch)

	if summary.Processed != 3 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 3 processed", summary)
	}
	if len(metrics.rows) != 3 {
		t.Errorf("stored %d metric rows, want 3", len(metrics.rows))
	}
}

// 单条失败不影响同批其余记录，且成功数+失败数恒等于批次大小
func TestProcessBatchRecordIsolation(t *testing.T) {
	metrics := &fakeMetricStore{}
	counters := newFakeCounterStore()
	engine := newTestEngine(metrics, counters)

	batch := [][]byte{
		eventPayload(t, nil),
		{},                          // 空载荷
		[]byte("{not json"),         // 无法解析
		eventPayload(t, func(e *domain.UsageEvent) { e.Method = "TRACE" }), // 校验失败
		eventPayload(t, nil),
	}
	summary := engine.ProcessBatch(context.Background(), batch)

	if summary.Processed != 2 {
		t.Errorf("Processed = %d, want 2", summary.Processed)
	}
	if summary.Failed != 3 {
		t.Errorf("Failed = %d, want 3", summary.Failed)
	}
	if summary.Processed+summary.Failed != len(batch) {
		t.Error("processed + failed must equal batch size")
	}
	if len(metrics.rows) != 2 {
		t.Errorf("stored %d metric rows, want 2", len(metrics.rows))
	}
}

func TestProcessRecordPayloadChecks(t *testing.T) {
	metrics := &fakeMetricStore{}
	engine := newTestEngine(metrics, newFakeCounterStore())
	now := time.Now()

	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{"empty payload", nil, domain.ErrEmptyPayload},
		{"oversized payload", bytes.Repeat([]byte("x"), domain.MaxEventPayloadSize+1), domain.ErrPayloadTooLarge},
		{"malformed payload", []byte("{{{"), domain.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.processRecord(context.Background(), tt.payload, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("processRecord() = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(metrics.rows) != 0 {
		t.Error("rejected payloads must not reach the metric store")
	}
}

// 重复投递同一事件产生两条记录，计数器加 2
func TestProcessBatchDuplicateDelivery(t *testing.T) {
	metrics := &fakeMetricStore{}
	counters := newFakeCounterStore()
	engine := newTestEngine(metrics, counters)

	payload := eventPayload(t, nil)
	engine.ProcessBatch(context.Background(), [][]byte{payload, payload})

	if len(metrics.rows) != 2 {
		t.Fatalf("stored %d rows, want 2", len(metrics.rows))
	}
	if metrics.rows[0].ID == metrics.rows[1].ID {
		t.Error("duplicate deliveries must get fresh record IDs")
	}
	key := testAPIKey + "|" + domain.EndpointUsageKey("/api/v1/items")
	if counters.counts[key] != 2 {
		t.Errorf("endpoint counter = %d, want 2", counters.counts[key])
	}
}

// 指标落库失败使整条记录失败
func TestProcessRecordMetricStoreFailure(t *testing.T) {
	metrics := &fakeMetricStore{failErr: domain.ErrStorageQuery}
	engine := newTestEngine(metrics, newFakeCounterStore())

	summary := engine.ProcessBatch(context.Background(), [][]byte{eventPayload(t, nil)})
	if summary.Failed != 1 || summary.Processed != 0 {
		t.Errorf("summary = %+v, want 1 failed", summary)
	}
}

// 计数器更新是尽力而为的：失败不使记录失败
func TestProcessRecordCounterFailureBestEffort(t *testing.T) {
	metrics := &fakeMetricStore{}
	counters := newFakeCounterStore()
	counters.failErr = domain.ErrStorageQuery
	engine := newTestEngine(metrics, counters)

	summary := engine.ProcessBatch(context.Background(), [][]byte{eventPayload(t, nil)})
	if summary.Processed != 1 {
		t.Errorf("summary = %+v, want 1 processed despite counter failure", summary)
	}
	if len(metrics.rows) != 1 {
		t.Error("metric row missing")
	}
}

// 匿名事件落库但不更新洞察计数器
func TestProcessRecordAnonymousSkipsInsights(t *testing.T) {
	metrics := &fakeMetricStore{}
	counters := newFakeCounterStore()
	engine := newTestEngine(metrics, counters)

	payload := eventPayload(t, func(e *domain.UsageEvent) { e.APIKey = domain.AnonymousAPIKey })
	summary := engine.ProcessBatch(context.Background(), [][]byte{payload})

	if summary.Processed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(counters.counts) != 0 {
		t.Errorf("anonymous event updated %d counters", len(counters.counts))
	}
}

// 装配追踪器后每个批次产生一个跨度，被拒绝的记录以错误事件落在跨度上
func TestProcessBatchTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	engine := newTestEngine(&fakeMetricStore{}, newFakeCounterStore()).
		WithTracer(tp.Tracer("test"))

	engine.ProcessBatch(context.Background(), [][]byte{
		eventPayload(t, nil),
		{}, // 空载荷被拒绝
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "analytics.process_batch" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want error after rejected record", span.Status().Code)
	}
	if len(span.Events()) == 0 {
		t.Error("expected the rejection recorded as a span event")
	}
}

// 未装配追踪器时批次处理不产生跨度也不崩溃
func TestProcessBatchWithoutTracer(t *testing.T) {
	engine := newTestEngine(&fakeMetricStore{}, newFakeCounterStore())

	summary := engine.ProcessBatch(context.Background(), [][]byte{eventPayload(t, nil)})
	if summary.Processed != 1 {
		t.Errorf("summary = %+v, want 1 processed", summary)
	}
}

// 洞察派生：错误计数与慢请求计数按条件触发
func TestUpdateInsightsDerivation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*domain.UsageEvent)
		wantKeys []string
	}{
		{
			name:   "fast success",
			mutate: nil,
			wantKeys: []string{
				domain.EndpointUsageKey("/api/v1/items"),
			},
		},
		{
			name:   "server error",
			mutate: func(e *domain.UsageEvent) { e.StatusCode = 503 },
			wantKeys: []string{
				domain.EndpointUsageKey("/api/v1/items"),
				domain.ErrorCountKey(503),
			},
		},
		{
			name:   "slow request",
			mutate: func(e *domain.UsageEvent) { e.ResponseTimeMs = 1500 },
			wantKeys: []string{
				domain.EndpointUsageKey("/api/v1/items"),
				domain.SlowRequestKey,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counters := newFakeCounterStore()
			engine := newTestEngine(&fakeMetricStore{}, counters)

			engine.ProcessBatch(context.Background(), [][]byte{eventPayload(t, tt.mutate)})

			// 日用量计数器总是更新
			wantTotal := len(tt.wantKeys) + 1
			if len(counters.counts) != wantTotal {
				t.Errorf("updated %d counters, want %d: %v", len(counters.counts), wantTotal, counters.counts)
			}
			for _, key := range tt.wantKeys {
				if counters.counts[testAPIKey+"|"+key] != 1 {
					t.Errorf("counter %q not incremented", key)
				}
			}
		})
	}
}
