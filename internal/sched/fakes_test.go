package sched

import (
	"time"
)

// fakeIdle records scheduled callbacks without running them.
type fakeIdle struct {
	next      Handle
	pending   map[Handle]func(Deadline)
	scheduled int
	cancelled int
}

func newFakeIdle() *fakeIdle {
	return &fakeIdle{pending: make(map[Handle]func(Deadline))}
}

func (f *fakeIdle) Schedule(cb func(Deadline)) Handle {
	f.next++
	f.scheduled++
	f.pending[f.next] = cb
	return f.next
}

func (f *fakeIdle) Cancel(h Handle) {
	if _, ok := f.pending[h]; ok {
		f.cancelled++
		delete(f.pending, h)
	}
}

// fire runs every pending callback with the given deadline.
func (f *fakeIdle) fire(d Deadline) int {
	cbs := f.pending
	f.pending = make(map[Handle]func(Deadline))
	for _, cb := range cbs {
		cb(d)
	}
	return len(cbs)
}

// fakeMicrotasks holds microtasks until flush, or runs them inline.
type fakeMicrotasks struct {
	inline bool
	queued []func()
	calls  int
}

func (f *fakeMicrotasks) QueueMicrotask(fn func()) {
	f.calls++
	if f.inline {
		fn()
		return
	}
	f.queued = append(f.queued, fn)
}

func (f *fakeMicrotasks) flush() {
	for len(f.queued) > 0 {
		fn := f.queued[0]
		f.queued = f.queued[1:]
		fn()
	}
}

// fakeLifecycle is a page whose visibility tests flip by hand.
type fakeLifecycle struct {
	visibility VisibilityState
	reliable   bool
	listeners  map[LifecycleEvent][]*fakeSub
}

type fakeSub struct {
	l      LifecycleListener
	active bool
}

func (s *fakeSub) Unsubscribe() { s.active = false }

func newFakeLifecycle(reliable bool) *fakeLifecycle {
	return &fakeLifecycle{
		visibility: Visible,
		reliable:   reliable,
		listeners:  make(map[LifecycleEvent][]*fakeSub),
	}
}

func (f *fakeLifecycle) VisibilityState() VisibilityState { return f.visibility }

func (f *fakeLifecycle) UnloadSignalsReliable() bool { return f.reliable }

func (f *fakeLifecycle) Subscribe(ev LifecycleEvent, l LifecycleListener) Subscription {
	s := &fakeSub{l: l, active: true}
	f.listeners[ev] = append(f.listeners[ev], s)
	return s
}

func (f *fakeLifecycle) active(ev LifecycleEvent) int {
	var n int
	for _, s := range f.listeners[ev] {
		if s.active {
			n++
		}
	}
	return n
}

func (f *fakeLifecycle) dispatch(ev LifecycleEvent) {
	for _, s := range f.listeners[ev] {
		if s.active {
			s.l.OnLifecycle(ev)
		}
	}
}

func (f *fakeLifecycle) hide() {
	f.visibility = Hidden
	f.dispatch(VisibilityChange)
}

// stepDeadline reports the given remaining times in order, repeating the
// last one once exhausted.
type stepDeadline struct {
	remaining []time.Duration
	calls     int
}

func (d *stepDeadline) TimeRemaining() time.Duration {
	i := d.calls
	d.calls++
	if i >= len(d.remaining) {
		i = len(d.remaining) - 1
	}
	return d.remaining[i]
}

func (d *stepDeadline) DidTimeout() bool { return false }

// fakeTimers runs timeouts only when told to.
type fakeTimers struct {
	next    uint64
	pending map[uint64]func()
	order   []uint64
	delays  []time.Duration
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{pending: make(map[uint64]func())}
}

func (f *fakeTimers) SetTimeout(fn func(), delay time.Duration) uint64 {
	f.next++
	f.pending[f.next] = fn
	f.order = append(f.order, f.next)
	f.delays = append(f.delays, delay)
	return f.next
}

func (f *fakeTimers) ClearTimeout(id uint64) {
	delete(f.pending, id)
}

func (f *fakeTimers) runAll() int {
	var n int
	for _, id := range f.order {
		if fn, ok := f.pending[id]; ok {
			delete(f.pending, id)
			fn()
			n++
		}
	}
	f.order = nil
	return n
}

// recorder collects observer events.
type recorder struct {
	events []StatusEvent
}

func (r *recorder) OnEvent(ev StatusEvent) { r.events = append(r.events, ev) }

func (r *recorder) count(kind StatusKind) int {
	var n int
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
