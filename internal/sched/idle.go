package sched

import "time"

// Handle identifies a scheduled idle callback. The zero Handle is "none".
type Handle uint64

// IdleScheduler runs a callback once, whenever the host is idle.
type IdleScheduler interface {
	Schedule(cb func(Deadline)) Handle
	// Cancel prevents a pending callback. Unknown, fired or already
	// cancelled handles are ignored.
	Cancel(h Handle)
}

// NewIdleScheduler prefers the host's native idle callbacks and falls back
// to a zero-delay timer with a synthetic deadline. It returns nil when the
// host offers neither. budget only applies to the fallback.
func NewIdleScheduler(timers Timers, native IdleCallbacks, clock Clock, budget time.Duration) IdleScheduler {
	if native != nil {
		return nativeIdleScheduler{native}
	}
	if timers != nil {
		return NewTimerIdleScheduler(timers, clock, budget)
	}
	return nil
}

type nativeIdleScheduler struct {
	callbacks IdleCallbacks
}

func (s nativeIdleScheduler) Schedule(cb func(Deadline)) Handle {
	return Handle(s.callbacks.RequestIdleCallback(cb))
}

func (s nativeIdleScheduler) Cancel(h Handle) {
	if h == 0 {
		return
	}
	s.callbacks.CancelIdleCallback(uint64(h))
}

// TimerIdleScheduler is the requestIdleCallback shim.
type TimerIdleScheduler struct {
	timers Timers
	clock  Clock
	budget time.Duration
}

// NewTimerIdleScheduler builds the shim. The deadline budget starts at
// Schedule time, not at fire time.
func NewTimerIdleScheduler(timers Timers, clock Clock, budget time.Duration) *TimerIdleScheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if budget <= 0 {
		budget = DefaultIdleBudget
	}
	return &TimerIdleScheduler{timers: timers, clock: clock, budget: budget}
}

func (s *TimerIdleScheduler) Schedule(cb func(Deadline)) Handle {
	deadline := NewDeadline(s.clock, s.clock.Now(), s.budget)
	return Handle(s.timers.SetTimeout(func() { cb(deadline) }, 0))
}

func (s *TimerIdleScheduler) Cancel(h Handle) {
	if h == 0 {
		return
	}
	s.timers.ClearTimeout(uint64(h))
}
