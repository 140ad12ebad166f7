package sched

import "time"

// DefaultIdleBudget is the length of one synthetic idle period.
const DefaultIdleBudget = 50 * time.Millisecond

// Deadline describes how much of the current idle period remains.
type Deadline interface {
	TimeRemaining() time.Duration
	DidTimeout() bool
}

// idleDeadline is the synthetic deadline used when the host has no idle
// callbacks of its own. It never reports a timeout.
type idleDeadline struct {
	clock    Clock
	initTime time.Time
	budget   time.Duration
}

// NewDeadline returns a deadline whose budget starts counting down at
// initTime.
func NewDeadline(clock Clock, initTime time.Time, budget time.Duration) Deadline {
	if clock == nil {
		clock = SystemClock{}
	}
	return &idleDeadline{clock: clock, initTime: initTime, budget: budget}
}

func (d *idleDeadline) TimeRemaining() time.Duration {
	remaining := d.budget - d.clock.Now().Sub(d.initTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (d *idleDeadline) DidTimeout() bool { return false }

// shouldYield reports whether the pass must stop before a task needing
// minTaskTime, and the time that was left. A nil deadline never yields.
func shouldYield(deadline Deadline, minTaskTime time.Duration) (bool, time.Duration) {
	if deadline == nil {
		return false, 0
	}
	remaining := deadline.TimeRemaining()
	return remaining <= minTaskTime, remaining
}
