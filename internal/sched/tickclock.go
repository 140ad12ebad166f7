// internal/sched/tickclock.go

package sched

import (
	"sync/atomic"
	"time"
)

// Clock supplies the current time to the queue and its deadlines.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock (with its monotonic reading).
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// StepClock is a manually driven clock. It only moves when Advance or Tick
// is called, and counts its ticks atomically.
type StepClock struct {
	base    time.Time
	step    time.Duration
	elapsed atomic.Int64
	count   atomic.Int64
}

// NewStepClock creates a clock anchored at base that moves step per Tick.
func NewStepClock(base time.Time, step time.Duration) *StepClock {
	return &StepClock{base: base, step: step}
}

// Now returns base plus everything advanced so far.
func (c *StepClock) Now() time.Time {
	return c.base.Add(time.Duration(c.elapsed.Load()))
}

// Advance moves the clock forward by d. Negative values are ignored, so the
// clock never goes backwards.
func (c *StepClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.elapsed.Add(int64(d))
}

// Tick advances the clock by one step.
func (c *StepClock) Tick() {
	c.count.Add(1)
	c.Advance(c.step)
}

// Count returns the current tick count atomically.
func (c *StepClock) Count() int64 {
	return c.count.Load()
}
