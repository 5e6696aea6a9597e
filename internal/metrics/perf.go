// Package metrics 提供 Prometheus 指标采集与进程内性能统计。
// 本文件实现按操作名累积的性能统计器。统计器被同一实例上的多个
// 并发调用共享，所有更新都在互斥锁保护下进行。
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// OpStats 是单个操作的性能统计快照。
type OpStats struct {
	// Calls 是调用总次数
	Calls int64 `json:"calls"`
	// Successes 是成功次数
	Successes int64 `json:"successes"`
	// TotalMs 是累计耗时（毫秒）
	TotalMs int64 `json:"total_ms"`
	// AvgMs 是平均耗时（毫秒）
	AvgMs float64 `json:"avg_ms"`
	// MinMs 是最小耗时（毫秒）
	MinMs int64 `json:"min_ms"`
	// MaxMs 是最大耗时（毫秒）
	MaxMs int64 `json:"max_ms"`
}

// PerfTracker 按操作名累积性能统计。
// 与缓存一样由运行时特性开关控制：关闭时 Record 为空操作，
// Snapshot 返回空映射。
type PerfTracker struct {
	mu      sync.Mutex
	ops     map[string]*OpStats
	enabled atomic.Bool
}

// NewPerfTracker 创建性能统计器。
func NewPerfTracker(enabled bool) *PerfTracker {
	t := &PerfTracker{ops: make(map[string]*OpStats)}
	t.enabled.Store(enabled)
	return t
}

// SetEnabled 翻转特性开关。
func (t *PerfTracker) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Enabled 返回特性开关当前状态。
func (t *PerfTracker) Enabled() bool {
	return t.enabled.Load()
}

// Record 记录一次操作的耗时与结果。统计器关闭时为空操作。
func (t *PerfTracker) Record(operation string, duration time.Duration, success bool) {
	if !t.enabled.Load() {
		return
	}

	ms := duration.Milliseconds()

	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.ops[operation]
	if !ok {
		stats = &OpStats{MinMs: ms, MaxMs: ms}
		t.ops[operation] = stats
	}

	stats.Calls++
	if success {
		stats.Successes++
	}
	stats.TotalMs += ms
	if ms < stats.MinMs {
		stats.MinMs = ms
	}
	if ms > stats.MaxMs {
		stats.MaxMs = ms
	}
}

// Snapshot 返回所有操作统计的值拷贝，平均耗时在快照时计算。
func (t *PerfTracker) Snapshot() map[string]OpStats {
	out := make(map[string]OpStats)
	if !t.enabled.Load() {
		return out
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for op, stats := range t.ops {
		s := *stats
		if s.Calls > 0 {
			s.AvgMs = float64(s.TotalMs) / float64(s.Calls)
		}
		out[op] = s
	}
	return out
}
