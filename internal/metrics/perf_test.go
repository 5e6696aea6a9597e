package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestPerfTrackerRecord(t *testing.T) {
	tracker := NewPerfTracker(true)

	tracker.Record("items.create", 10*time.Millisecond, true)
	tracker.Record("items.create", 30*time.Millisecond, true)
	tracker.Record("items.create", 20*time.Millisecond, false)

	snap := tracker.Snapshot()
	stats, ok := snap["items.create"]
	if !ok {
		t.Fatal("missing operation stats")
	}

	if stats.Calls != 3 {
		t.Errorf("Calls = %d, want 3", stats.Calls)
	}
	if stats.Successes != 2 {
		t.Errorf("Successes = %d, want 2", stats.Successes)
	}
	if stats.MinMs != 10 {
		t.Errorf("MinMs = %d, want 10", stats.MinMs)
	}
	if stats.MaxMs != 30 {
		t.Errorf("MaxMs = %d, want 30", stats.MaxMs)
	}
	if stats.AvgMs != 20 {
		t.Errorf("AvgMs = %v, want 20", stats.AvgMs)
	}
}

// 关闭状态下 Record 为空操作，Snapshot 返回空映射
func TestPerfTrackerDisabled(t *testing.T) {
	tracker := NewPerfTracker(false)
	tracker.Record("items.create", time.Millisecond, true)

	if snap := tracker.Snapshot(); len(snap) != 0 {
		t.Errorf("disabled tracker returned %d entries", len(snap))
	}

	// 重新开启后此前的记录不会出现
	tracker.SetEnabled(true)
	tracker.Record("items.get", time.Millisecond, true)
	snap := tracker.Snapshot()
	if _, ok := snap["items.create"]; ok {
		t.Error("records made while disabled should not appear")
	}
	if _, ok := snap["items.get"]; !ok {
		t.Error("records made while enabled missing")
	}
}

// 快照是值拷贝，修改快照不影响后续统计
func TestPerfTrackerSnapshotIsolation(t *testing.T) {
	tracker := NewPerfTracker(true)
	tracker.Record("op", 5*time.Millisecond, true)

	snap := tracker.Snapshot()
	s := snap["op"]
	s.Calls = 999

	if tracker.Snapshot()["op"].Calls != 1 {
		t.Error("snapshot mutation leaked into tracker state")
	}
}

func TestPerfTrackerConcurrent(t *testing.T) {
	tracker := NewPerfTracker(true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Record("op", time.Millisecond, true)
			}
		}()
	}
	wg.Wait()

	if got := tracker.Snapshot()["op"].Calls; got != 1000 {
		t.Errorf("Calls = %d, want 1000", got)
	}
}
