package sched

import (
	"errors"
	"fmt"
)

// ErrNoIdleScheduler is returned by New when neither an idle scheduler nor
// an environment able to provide one was configured.
var ErrNoIdleScheduler = errors.New("sched: no idle scheduler available")

// TaskPanicError wraps a value recovered from a panicking task.
type TaskPanicError struct {
	Value any
	State State
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("sched: task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
