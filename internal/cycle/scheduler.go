// Package cycle drives the timed slide rotation.
package cycle

import (
	"sync"
	"time"
)

// Scheduler fires a callback at a fixed interval while cycling is worth
// doing: it never ticks when disabled, when fewer than two pages exist, or
// while the display is hidden. All methods are safe for concurrent use.
type Scheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	pageCount int
	enabled   bool
	visible   bool
	timer     *time.Timer
	running   bool
	onTick    func()
}

// NewScheduler builds a stopped scheduler. onTick runs on the timer
// goroutine; it must not call back into the scheduler while holding locks
// the tick path also needs.
func NewScheduler(onTick func()) *Scheduler {
	return &Scheduler{
		visible: true,
		onTick:  onTick,
	}
}

// Configure sets the interval, page count and enablement, then restarts the
// timer if cycling should be running.
func (s *Scheduler) Configure(interval time.Duration, pageCount int, enabled bool) {
	s.mu.Lock()
	s.interval = interval
	s.pageCount = pageCount
	s.enabled = enabled
	s.restartLocked()
	s.mu.Unlock()
}

// Start arms the timer if cycling conditions hold. It is idempotent unless
// force is set, in which case the pending tick is re-armed from now — used
// after manual navigation so the full interval elapses before auto-advance.
func (s *Scheduler) Start(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && !force {
		return
	}
	s.restartLocked()
}

// Stop cancels any pending tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

// SetVisible pauses cycling while the display is hidden and resumes it when
// the display returns.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible == visible {
		return
	}
	s.visible = visible
	if visible {
		s.restartLocked()
	} else {
		s.stopLocked()
	}
}

// Running reports whether a tick is pending.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) shouldRunLocked() bool {
	return s.enabled && s.visible && s.pageCount > 1 && s.interval > 0
}

func (s *Scheduler) restartLocked() {
	s.stopLocked()
	if !s.shouldRunLocked() {
		return
	}
	s.running = true
	s.timer = time.AfterFunc(s.interval, s.tick)
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.running = false
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if !s.shouldRunLocked() {
		s.stopLocked()
		s.mu.Unlock()
		return
	}
	s.timer = time.AfterFunc(s.interval, s.tick)
	onTick := s.onTick
	s.mu.Unlock()

	if onTick != nil {
		onTick()
	}
}
