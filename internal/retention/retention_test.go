package retention

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/cirrus/internal/cache"
	"github.com/oriys/cirrus/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeMetricStore 记录过期清理的调用情况。
type fakeMetricStore struct {
	mu      sync.Mutex
	deletes int
	deleted int64
}

func (s *fakeMetricStore) InsertMetric(ctx context.Context, m *domain.UsageMetric) error {
	return nil
}

func (s *fakeMetricStore) QueryMetrics(ctx context.Context, metricType string, from, to int64, limit int) ([]*domain.UsageMetric, error) {
	return nil, nil
}

func (s *fakeMetricStore) DeleteExpiredMetrics(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	return s.deleted, nil
}

// 一轮清理同时删除过期指标行并清扫缓存中的过期条目
func TestJanitorSweep(t *testing.T) {
	store := &fakeMetricStore{deleted: 7}
	c := cache.New(cache.Config{Enabled: true, TTL: time.Millisecond, MaxEntries: 16})
	c.Set(cache.Key("items", "get", "item-1"), "stale")
	c.Set(cache.Key("items", "get", "item-2"), "stale")
	time.Sleep(10 * time.Millisecond)

	j := NewJanitor(store, c, "* * * * * *", newTestLogger())
	j.sweep()

	if store.deletes != 1 {
		t.Errorf("DeleteExpiredMetrics called %d times, want 1", store.deletes)
	}
	if c.Len() != 0 {
		t.Errorf("cache holds %d entries after sweep, want 0", c.Len())
	}
}

// 缓存侧装配：没有指标存储时清理只作用于缓存，不会崩溃
func TestJanitorSweepCacheOnly(t *testing.T) {
	c := cache.New(cache.Config{Enabled: true, TTL: time.Millisecond, MaxEntries: 16})
	c.Set(cache.Key("items", "get", "item-1"), "stale")
	time.Sleep(10 * time.Millisecond)

	j := NewJanitor(nil, c, "* * * * * *", newTestLogger())
	j.sweep()

	if c.Len() != 0 {
		t.Errorf("cache holds %d entries after sweep, want 0", c.Len())
	}
}

// 指标侧装配：没有缓存时清理只作用于指标存储
func TestJanitorSweepMetricsOnly(t *testing.T) {
	store := &fakeMetricStore{}

	j := NewJanitor(store, nil, "* * * * * *", newTestLogger())
	j.sweep()

	if store.deletes != 1 {
		t.Errorf("DeleteExpiredMetrics called %d times, want 1", store.deletes)
	}
}

// 非法 cron 表达式在启动时被拒绝
func TestJanitorStartRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(&fakeMetricStore{}, nil, "not a schedule", newTestLogger())
	if err := j.Start(); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}
