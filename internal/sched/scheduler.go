// internal/sched/scheduler.go

package sched

import (
	"time"

	"github.com/emirpasic/gods/lists/doublylinkedlist"
)

// Queue defers tasks to idle periods and makes sure they still run when
// the page is hidden or about to unload (with Config.EnsureTasksRun).
//
// A Queue is not safe for concurrent use. Every method, and every trigger
// and lifecycle callback it is wired to, must run on the host's loop
// goroutine.
type Queue struct {
	ensureTasksRun     bool
	defaultMinTaskTime time.Duration

	clock      Clock
	idle       IdleScheduler
	microtasks MicrotaskQueuer
	lifecycle  Lifecycle
	observer   Observer

	tasks      *doublylinkedlist.List // of *entry, front runs first
	processing bool                   // a drain pass is in progress
	state      *State                 // of the running task
	handle     Handle                 // outstanding idle drain, 0 if none
	subs       []Subscription

	// bound once, so every trigger sees the same function
	runIdle   func(Deadline)
	runQueued func()
}

// New creates a Queue. Triggers come from the options, falling back to
// WithEnvironment detection; ErrNoIdleScheduler if none can be found.
func New(cfg Config, opts ...Option) (*Queue, error) {
	cfg = cfg.Sanitize()

	var o queueOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.resolve(cfg); err != nil {
		return nil, err
	}

	q := &Queue{
		ensureTasksRun:     cfg.EnsureTasksRun,
		defaultMinTaskTime: cfg.DefaultMinTaskTime(),
		clock:              o.clock,
		idle:               o.idle,
		microtasks:         o.microtasks,
		lifecycle:          o.lifecycle,
		observer:           o.observer,
		tasks:              doublylinkedlist.New(),
	}
	q.runIdle = func(d Deadline) { q.runTasks(d) }
	q.runQueued = func() { q.runTasks(nil) }

	if q.ensureTasksRun && q.lifecycle != nil {
		h := lifecycleHandler{q}
		q.subs = append(q.subs, q.lifecycle.Subscribe(VisibilityChange, h))
		// Some hosts close tabs without a visibility change, before-unload
		// is the last chance there.
		if !q.lifecycle.UnloadSignalsReliable() {
			q.subs = append(q.subs, q.lifecycle.Subscribe(BeforeUnload, h))
		}
	}

	return q, nil
}

// PushTask appends a task and arranges for the queue to be drained.
func (q *Queue) PushTask(task Task, opts ...TaskOption) {
	q.addTask(false, task, opts)
}

// UnshiftTask is PushTask, but the task goes to the front of the queue.
func (q *Queue) UnshiftTask(task Task, opts ...TaskOption) {
	q.addTask(true, task, opts)
}

// RunTasksImmediately drains every pending task synchronously, ignoring
// deadlines and minimum task times.
func (q *Queue) RunTasksImmediately() {
	q.emit(StatusEvent{Kind: StatusForced})
	q.runTasks(nil)
}

// HasPendingTasks reports whether any task is still queued. The running
// task is not queued.
func (q *Queue) HasPendingTasks() bool {
	return !q.tasks.Empty()
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return q.tasks.Size()
}

// ClearPendingTasks drops all queued tasks and cancels any scheduled drain.
// A task that is already running is not interrupted.
func (q *Queue) ClearPendingTasks() {
	q.tasks.Clear()
	q.cancelScheduledRun()
	q.emit(StatusEvent{Kind: StatusClear})
}

// State returns the enqueue-time snapshot of the running task, or nil when
// no task is running.
func (q *Queue) State() *State {
	if q.state == nil {
		return nil
	}
	s := *q.state
	return &s
}

// Destroy clears the queue and detaches it from the page lifecycle. It is
// safe to call more than once.
func (q *Queue) Destroy() {
	q.tasks.Clear()
	q.cancelScheduledRun()
	for _, sub := range q.subs {
		sub.Unsubscribe()
	}
	q.subs = nil
	q.emit(StatusEvent{Kind: StatusDestroy})
}

func (q *Queue) addTask(front bool, task Task, opts []TaskOption) {
	if task == nil {
		return
	}

	e := newEntry(task, q.defaultMinTaskTime, opts)
	e.state = State{
		Time:            q.clock.Now(),
		VisibilityState: q.visibilityState(),
	}
	if front {
		q.tasks.Prepend(e)
	} else {
		q.tasks.Add(e)
	}
	q.emit(StatusEvent{Kind: StatusEnqueue, MinTaskTime: e.minTaskTime})

	q.scheduleTasksToRun()
}

// scheduleTasksToRun uses a microtask while the page is hidden, since those
// still run during unload where timers and idle callbacks may not.
// Otherwise at most one idle drain is outstanding.
func (q *Queue) scheduleTasksToRun() {
	if q.ensureTasksRun && q.visibilityState() == Hidden {
		q.emit(StatusEvent{Kind: StatusScheduleMicrotask})
		q.microtasks.QueueMicrotask(q.runQueued)
		return
	}
	if q.handle == 0 {
		q.handle = q.idle.Schedule(q.runIdle)
		q.emit(StatusEvent{Kind: StatusScheduleIdle})
	}
}

// runTasks is one drain pass. Without a deadline every queued task runs.
func (q *Queue) runTasks(deadline Deadline) {
	// 1) this pass supersedes any scheduled one
	q.cancelScheduledRun()

	// 2) no nested passes
	if q.processing {
		return
	}

	// 3) run until empty or out of time
	q.processing = true
	for !q.tasks.Empty() {
		v, _ := q.tasks.Get(0)
		e := v.(*entry)
		if yield, remaining := shouldYield(deadline, e.minTaskTime); yield {
			q.emit(StatusEvent{
				Kind:        StatusYield,
				MinTaskTime: e.minTaskTime,
				Remaining:   remaining,
			})
			break
		}
		q.tasks.Remove(0)
		q.execute(e)
	}

	// 4) pass complete
	q.processing = false

	// 5) leftovers go to the next idle period
	if !q.tasks.Empty() {
		q.scheduleTasksToRun()
	}
}

// execute runs one task, containing any panic so the pass continues.
func (q *Queue) execute(e *entry) {
	state := e.state
	q.state = &state
	q.emit(StatusEvent{Kind: StatusDispatch, MinTaskTime: e.minTaskTime})

	defer func() {
		q.state = nil
		if r := recover(); r != nil {
			q.emit(StatusEvent{
				Kind: StatusPanic,
				Err:  &TaskPanicError{Value: r, State: state},
			})
			return
		}
		q.emit(StatusEvent{Kind: StatusFinish, MinTaskTime: e.minTaskTime})
	}()

	e.task()
}

func (q *Queue) cancelScheduledRun() {
	if q.handle != 0 {
		q.idle.Cancel(q.handle)
		q.handle = 0
	}
}

func (q *Queue) visibilityState() VisibilityState {
	if q.lifecycle == nil {
		return Visible
	}
	return q.lifecycle.VisibilityState()
}

func (q *Queue) emit(ev StatusEvent) {
	if q.observer == nil {
		return
	}
	ev.Time = q.clock.Now()
	ev.Pending = q.tasks.Size()
	q.observer.OnEvent(ev)
}

// lifecycleHandler keeps OnLifecycle off the Queue's exported API.
type lifecycleHandler struct {
	q *Queue
}

func (h lifecycleHandler) OnLifecycle(ev LifecycleEvent) {
	switch ev {
	case VisibilityChange:
		if h.q.visibilityState() == Hidden {
			h.q.RunTasksImmediately()
		}
	case BeforeUnload:
		h.q.RunTasksImmediately()
	}
}
