package sched

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	q     *Queue
	idle  *fakeIdle
	micro *fakeMicrotasks
	page  *fakeLifecycle
	clock *StepClock
	obs   *recorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		idle:  newFakeIdle(),
		micro: &fakeMicrotasks{},
		page:  newFakeLifecycle(true),
		clock: NewStepClock(time.Unix(1700000000, 0), time.Millisecond),
		obs:   &recorder{},
	}
	q, err := New(cfg,
		WithIdleScheduler(h.idle),
		WithMicrotaskQueuer(h.micro),
		WithLifecycle(h.page),
		WithClock(h.clock),
		WithObserver(h.obs),
	)
	require.NoError(t, err)
	h.q = q
	return h
}

func (h *harness) log(out *[]string, name string) Task {
	return func() { *out = append(*out, name) }
}

func TestNew_noIdleScheduler(t *testing.T) {
	q, err := New(DefaultConfig())
	assert.Nil(t, q)
	assert.ErrorIs(t, err, ErrNoIdleScheduler)
}

func TestQueue_pushDoesNotRunSynchronously(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var ran bool
	h.q.PushTask(func() { ran = true })

	assert.False(t, ran)
	assert.True(t, h.q.HasPendingTasks())
	assert.Equal(t, 1, h.idle.scheduled)
}

func TestQueue_runTasksImmediatelyKeepsPushOrder(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var out []string
	for _, name := range []string{"a", "b", "c", "d"} {
		h.q.PushTask(h.log(&out, name), WithMinTaskTime(time.Hour))
	}

	h.q.RunTasksImmediately()

	assert.Equal(t, []string{"a", "b", "c", "d"}, out)
	assert.False(t, h.q.HasPendingTasks())
	// the pass cancelled the outstanding idle drain
	assert.Empty(t, h.idle.pending)
}

func TestQueue_unshiftRunsFirst(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var out []string
	h.q.PushTask(h.log(&out, "a"))
	h.q.PushTask(h.log(&out, "b"))
	h.q.UnshiftTask(h.log(&out, "urgent"))

	h.q.RunTasksImmediately()

	assert.Equal(t, []string{"urgent", "a", "b"}, out)
}

func TestQueue_atMostOneIdleDrainOutstanding(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	for i := 0; i < 5; i++ {
		h.q.PushTask(func() {})
	}
	assert.Equal(t, 1, h.idle.scheduled)
	assert.Len(t, h.idle.pending, 1)
	assert.Equal(t, 5, h.q.Len())
}

func TestQueue_idleDrainRunsEverythingWithBudget(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var out []string
	h.q.PushTask(h.log(&out, "a"))
	h.q.PushTask(h.log(&out, "b"))

	require.Equal(t, 1, h.idle.fire(&stepDeadline{remaining: []time.Duration{40 * time.Millisecond}}))

	assert.Equal(t, []string{"a", "b"}, out)
	assert.False(t, h.q.HasPendingTasks())
	assert.Empty(t, h.idle.pending)
}

func TestQueue_yieldsWhenDeadlineAtOrBelowMinTaskTime(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var out []string
	h.q.PushTask(h.log(&out, "A"), WithMinTaskTime(0))
	h.q.PushTask(h.log(&out, "B"), WithMinTaskTime(100*time.Millisecond))

	h.idle.fire(&stepDeadline{remaining: []time.Duration{10 * time.Millisecond, 0}})

	assert.Equal(t, []string{"A"}, out)
	assert.True(t, h.q.HasPendingTasks())
	assert.Equal(t, 1, h.obs.count(StatusYield))
	// rescheduled for the next idle period
	assert.Equal(t, 2, h.idle.scheduled)
	assert.Len(t, h.idle.pending, 1)

	h.q.RunTasksImmediately()
	assert.Equal(t, []string{"A", "B"}, out)
	assert.False(t, h.q.HasPendingTasks())
}

func TestQueue_yieldBoundaryIsInclusive(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var ran bool
	h.q.PushTask(func() { ran = true }, WithMinTaskTime(10*time.Millisecond))

	h.idle.fire(&stepDeadline{remaining: []time.Duration{10 * time.Millisecond}})
	assert.False(t, ran)

	h.idle.fire(&stepDeadline{remaining: []time.Duration{11 * time.Millisecond}})
	assert.True(t, ran)
}

func TestQueue_defaultMinTaskTimeApplies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultMinTaskTimeMS = 20
	h := newHarness(t, cfg)
	var out []string
	h.q.PushTask(h.log(&out, "default"))
	h.q.PushTask(h.log(&out, "override"), WithMinTaskTime(0))

	// 15ms left is not enough for the 20ms default
	h.idle.fire(&stepDeadline{remaining: []time.Duration{15 * time.Millisecond}})
	assert.Empty(t, out)

	h.q.UnshiftTask(h.log(&out, "front"), WithMinTaskTime(0))
	h.idle.fire(&stepDeadline{remaining: []time.Duration{15 * time.Millisecond}})
	assert.Equal(t, []string{"front"}, out)
}

func TestQueue_clearPendingTasks(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var ran int
	h.q.PushTask(func() { ran++ })
	h.q.PushTask(func() { ran++ })

	h.q.ClearPendingTasks()

	assert.False(t, h.q.HasPendingTasks())
	assert.Equal(t, 1, h.idle.cancelled)
	assert.Zero(t, h.idle.fire(&stepDeadline{remaining: []time.Duration{time.Second}}))
	h.q.RunTasksImmediately()
	assert.Zero(t, ran)

	// idempotent
	h.q.ClearPendingTasks()
	assert.Equal(t, 2, h.obs.count(StatusClear))
}

func TestQueue_clearFromInsideRunningTask(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var out []string
	h.q.PushTask(func() {
		out = append(out, "first")
		h.q.ClearPendingTasks()
		out = append(out, "first-done")
	})
	h.q.PushTask(h.log(&out, "second"))

	h.q.RunTasksImmediately()

	assert.Equal(t, []string{"first", "first-done"}, out)
	assert.False(t, h.q.HasPendingTasks())
}

func TestQueue_hasPendingTasksFalseOnceLastTaskStarts(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var pending []bool
	h.q.PushTask(func() { pending = append(pending, h.q.HasPendingTasks()) })
	h.q.PushTask(func() { pending = append(pending, h.q.HasPendingTasks()) })

	h.q.RunTasksImmediately()

	assert.Equal(t, []bool{true, false}, pending)
}

func TestQueue_stateDuringExecution(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	enqueued := h.clock.Now()
	var seen *State
	h.q.PushTask(func() { seen = h.q.State() })
	h.clock.Advance(5 * time.Millisecond)

	assert.Nil(t, h.q.State())
	h.q.RunTasksImmediately()

	require.NotNil(t, seen)
	assert.Equal(t, enqueued, seen.Time)
	assert.Equal(t, Visible, seen.VisibilityState)
	assert.Nil(t, h.q.State())
}

func TestQueue_stateCapturesVisibilityAtEnqueue(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var seen VisibilityState
	h.q.PushTask(func() { seen = h.q.State().VisibilityState })
	h.page.visibility = Hidden

	h.q.RunTasksImmediately()

	assert.Equal(t, Visible, seen)
}

func TestQueue_noReentrantPass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnsureTasksRun = true
	h := newHarness(t, cfg)
	h.micro.inline = true
	h.page.visibility = Hidden

	var out []string
	h.q.PushTask(func() {
		out = append(out, "outer-start")
		// routes through an inline microtask, straight back into runTasks
		h.q.PushTask(h.log(&out, "inner"))
		out = append(out, "outer-end")
	})

	assert.Equal(t, []string{"outer-start", "outer-end", "inner"}, out)
	assert.False(t, h.q.HasPendingTasks())
}

func TestQueue_nestedRunTasksImmediatelyIsIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var out []string
	h.q.PushTask(func() {
		out = append(out, "a")
		h.q.RunTasksImmediately()
		out = append(out, "a-done")
	})
	h.q.PushTask(h.log(&out, "b"))

	h.q.RunTasksImmediately()

	assert.Equal(t, []string{"a", "a-done", "b"}, out)
}

func TestQueue_hiddenRoutesThroughMicrotasks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnsureTasksRun = true
	h := newHarness(t, cfg)
	h.page.visibility = Hidden

	var ran bool
	h.q.PushTask(func() { ran = true })

	assert.Equal(t, 1, h.micro.calls)
	assert.Zero(t, h.idle.scheduled)
	assert.False(t, ran)

	h.micro.flush()
	assert.True(t, ran)
}

func TestQueue_hiddenWithoutEnsureTasksRunUsesIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.page.visibility = Hidden

	h.q.PushTask(func() {})

	assert.Zero(t, h.micro.calls)
	assert.Equal(t, 1, h.idle.scheduled)
}

func TestQueue_visibilityHiddenForcesDrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnsureTasksRun = true
	h := newHarness(t, cfg)
	var out []string
	h.q.PushTask(h.log(&out, "a"), WithMinTaskTime(time.Hour))
	h.q.PushTask(h.log(&out, "b"))

	h.page.hide()

	assert.Equal(t, []string{"a", "b"}, out)
	assert.Equal(t, 1, h.obs.count(StatusForced))
}

func TestQueue_visibleChangeDoesNotDrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnsureTasksRun = true
	h := newHarness(t, cfg)
	var ran bool
	h.q.PushTask(func() { ran = true })

	h.page.visibility = Visible
	h.page.dispatch(VisibilityChange)

	assert.False(t, ran)
}

func TestQueue_beforeUnloadOnlyWhenUnreliable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnsureTasksRun = true

	h := newHarness(t, cfg)
	assert.Equal(t, 1, h.page.active(VisibilityChange))
	assert.Zero(t, h.page.active(BeforeUnload))

	page := newFakeLifecycle(false)
	q, err := New(cfg, WithIdleScheduler(newFakeIdle()), WithLifecycle(page))
	require.NoError(t, err)
	assert.Equal(t, 1, page.active(BeforeUnload))

	var ran bool
	q.PushTask(func() { ran = true })
	page.dispatch(BeforeUnload)
	assert.True(t, ran)
}

func TestQueue_noListenersWithoutEnsureTasksRun(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.Zero(t, h.page.active(VisibilityChange))
	assert.Zero(t, h.page.active(BeforeUnload))
}

func TestQueue_destroyDetachesListeners(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnsureTasksRun = true
	page := newFakeLifecycle(false)
	idle := newFakeIdle()
	q, err := New(cfg, WithIdleScheduler(idle), WithLifecycle(page))
	require.NoError(t, err)

	var ran int
	q.PushTask(func() { ran++ })
	q.Destroy()

	assert.False(t, q.HasPendingTasks())
	assert.Zero(t, page.active(VisibilityChange))
	assert.Zero(t, page.active(BeforeUnload))
	assert.Empty(t, idle.pending)

	// pushed after destroy, the hidden signal must not force it through
	q.PushTask(func() { ran++ })
	page.hide()
	page.dispatch(BeforeUnload)
	assert.Zero(t, ran)

	q.Destroy()
}

func TestQueue_panicIsContainedAndReported(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	boom := errors.New("boom")
	var out []string
	h.q.PushTask(func() { panic(boom) })
	h.q.PushTask(h.log(&out, "after"))

	h.q.RunTasksImmediately()

	assert.Equal(t, []string{"after"}, out)
	require.Equal(t, 1, h.obs.count(StatusPanic))
	for _, ev := range h.obs.events {
		if ev.Kind == StatusPanic {
			var tpe *TaskPanicError
			require.ErrorAs(t, ev.Err, &tpe)
			assert.ErrorIs(t, ev.Err, boom)
			assert.Equal(t, Visible, tpe.State.VisibilityState)
		}
	}
	assert.Nil(t, h.q.State())
}

func TestQueue_nilTaskIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.q.PushTask(nil)
	h.q.UnshiftTask(nil)
	assert.False(t, h.q.HasPendingTasks())
	assert.Zero(t, h.idle.scheduled)
}

func TestQueue_observerSeesLifecycleOfTask(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.q.PushTask(func() {})
	h.q.RunTasksImmediately()

	var kinds []StatusKind
	for _, ev := range h.obs.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []StatusKind{
		StatusEnqueue,
		StatusScheduleIdle,
		StatusForced,
		StatusDispatch,
		StatusFinish,
	}, kinds)
	assert.Equal(t, 1, h.obs.events[0].Pending)
	assert.Equal(t, 0, h.obs.events[3].Pending)
}

func TestQueue_withEnvironmentFallsBackToTimers(t *testing.T) {
	timers := newFakeTimers()
	env := &fakeEnv{timers: timers, lifecycle: newFakeLifecycle(true)}
	q, err := New(DefaultConfig(), WithEnvironment(env))
	require.NoError(t, err)

	var ran bool
	q.PushTask(func() { ran = true })
	assert.Equal(t, []time.Duration{0}, timers.delays)

	assert.Equal(t, 1, timers.runAll())
	assert.True(t, ran)
}

type fakeEnv struct {
	timers    Timers
	idle      IdleCallbacks
	promises  Promises
	observers MutationObservers
	lifecycle Lifecycle
}

func (e *fakeEnv) Timers() Timers                       { return e.timers }
func (e *fakeEnv) IdleCallbacks() IdleCallbacks         { return e.idle }
func (e *fakeEnv) Promises() Promises                   { return e.promises }
func (e *fakeEnv) MutationObservers() MutationObservers { return e.observers }
func (e *fakeEnv) Lifecycle() Lifecycle                 { return e.lifecycle }
