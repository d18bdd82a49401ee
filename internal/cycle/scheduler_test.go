package cycle

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitForTicks(t *testing.T, ticks *atomic.Int64, want int64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ticks.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d ticks, got %d", want, ticks.Load())
}

func TestSchedulerTicksRepeatedly(t *testing.T) {
	var ticks atomic.Int64
	s := NewScheduler(func() { ticks.Add(1) })
	s.Configure(20*time.Millisecond, 3, true)
	defer s.Stop()

	waitForTicks(t, &ticks, 2, time.Second)
}

func TestSchedulerNeverTicksWithSinglePage(t *testing.T) {
	var ticks atomic.Int64
	s := NewScheduler(func() { ticks.Add(1) })
	s.Configure(10*time.Millisecond, 1, true)

	if s.Running() {
		t.Fatal("scheduler should not run with a single page")
	}
	time.Sleep(50 * time.Millisecond)
	if ticks.Load() != 0 {
		t.Fatalf("got %d ticks with one page", ticks.Load())
	}
}

func TestSchedulerNeverTicksWhenDisabled(t *testing.T) {
	var ticks atomic.Int64
	s := NewScheduler(func() { ticks.Add(1) })
	s.Configure(10*time.Millisecond, 5, false)

	time.Sleep(50 * time.Millisecond)
	if ticks.Load() != 0 {
		t.Fatalf("got %d ticks while disabled", ticks.Load())
	}
}

func TestStartIdempotentUnlessForced(t *testing.T) {
	var ticks atomic.Int64
	s := NewScheduler(func() { ticks.Add(1) })
	s.Configure(time.Hour, 3, true)
	defer s.Stop()

	if !s.Running() {
		t.Fatal("expected pending tick after configure")
	}
	s.Start(false)
	if !s.Running() {
		t.Fatal("idempotent start must leave the timer armed")
	}

	// Force restart re-arms from now; with an hour interval nothing fires,
	// but the timer must still be pending.
	s.Start(true)
	if !s.Running() {
		t.Fatal("forced start must re-arm the timer")
	}
}

func TestVisibilityPausesAndResumes(t *testing.T) {
	var ticks atomic.Int64
	s := NewScheduler(func() { ticks.Add(1) })
	s.Configure(20*time.Millisecond, 3, true)
	defer s.Stop()

	s.SetVisible(false)
	if s.Running() {
		t.Fatal("hidden display must stop the timer")
	}
	paused := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	if ticks.Load() != paused {
		t.Fatal("ticks fired while hidden")
	}

	s.SetVisible(true)
	waitForTicks(t, &ticks, paused+1, time.Second)
}

func TestStopCancelsPendingTick(t *testing.T) {
	var ticks atomic.Int64
	s := NewScheduler(func() { ticks.Add(1) })
	s.Configure(30*time.Millisecond, 3, true)
	s.Stop()

	time.Sleep(80 * time.Millisecond)
	if ticks.Load() != 0 {
		t.Fatalf("got %d ticks after stop", ticks.Load())
	}
}
