package sched

import "time"

// Task is one unit of deferred work. Producers capture their own state in
// the closure; a running task may call Queue.State for enqueue conditions.
type Task func()

// State is the snapshot taken when a task was queued.
type State struct {
	Time            time.Time
	VisibilityState VisibilityState
}

// TaskOption adjusts a single push.
type TaskOption func(*taskOptions)

type taskOptions struct {
	minTaskTime *time.Duration
}

// WithMinTaskTime reserves d of idle time before the task may start. A pass
// whose deadline has d or less remaining yields instead of starting it.
func WithMinTaskTime(d time.Duration) TaskOption {
	return func(o *taskOptions) {
		if d < 0 {
			d = 0
		}
		o.minTaskTime = &d
	}
}

// entry is a queued task with its metadata.
type entry struct {
	task        Task
	minTaskTime time.Duration
	state       State
}

// newEntry resolves the options against the queue's default.
// NOTE: state is filled in by the queue, at enqueue time.
func newEntry(task Task, defaultMinTaskTime time.Duration, opts []TaskOption) *entry {
	var o taskOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	e := &entry{
		task:        task,
		minTaskTime: defaultMinTaskTime,
	}
	if o.minTaskTime != nil {
		e.minTaskTime = *o.minTaskTime
	}
	return e
}
