// internal/sched/schedulerEvent.go

package sched

import (
	"time"
)

// StatusKind represents the type of queue event
type StatusKind int

const (
	StatusEnqueue StatusKind = iota
	StatusDispatch
	StatusFinish
	StatusPanic
	StatusYield
	StatusScheduleIdle
	StatusScheduleMicrotask
	StatusForced
	StatusClear
	StatusDestroy
)

// StatusEvent is emitted on key queue actions
type StatusEvent struct {
	Time        time.Time
	Kind        StatusKind
	Pending     int           // tasks still queued after the action
	MinTaskTime time.Duration // of the task concerned, if any
	Remaining   time.Duration // deadline time left, for StatusYield
	Err         error         // for StatusPanic
}

// Observer receives queue events synchronously, on the queue's goroutine.
type Observer interface {
	OnEvent(ev StatusEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev StatusEvent)

func (f ObserverFunc) OnEvent(ev StatusEvent) { f(ev) }

// Observers fans one event out to several observers, in order.
type Observers []Observer

func (o Observers) OnEvent(ev StatusEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(ev)
		}
	}
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusFinish:
		return "Finish"
	case StatusPanic:
		return "Panic"
	case StatusYield:
		return "Yield"
	case StatusScheduleIdle:
		return "ScheduleIdle"
	case StatusScheduleMicrotask:
		return "ScheduleMicrotask"
	case StatusForced:
		return "Forced"
	case StatusClear:
		return "Clear"
	case StatusDestroy:
		return "Destroy"
	default:
		return "Unknown"
	}
}
