// internal/page/document.go

package page

import (
	"sort"
	"sync"

	"idleq/internal/sched"
)

// Document holds the page's visibility state and lifecycle listeners. It
// implements sched.Lifecycle. Listeners run synchronously on the goroutine
// that changes the state, which for a Window is always its loop.
type Document struct {
	mu         sync.Mutex
	visibility sched.VisibilityState
	reliable   bool
	listeners  map[sched.LifecycleEvent]map[uint64]sched.LifecycleListener
	nextID     uint64
}

// NewDocument returns a visible document.
func NewDocument(unloadSignalsReliable bool) *Document {
	return &Document{
		visibility: sched.Visible,
		reliable:   unloadSignalsReliable,
		listeners:  make(map[sched.LifecycleEvent]map[uint64]sched.LifecycleListener),
	}
}

func (d *Document) VisibilityState() sched.VisibilityState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visibility
}

func (d *Document) UnloadSignalsReliable() bool { return d.reliable }

// Subscribe registers l for ev. A nil listener is ignored.
func (d *Document) Subscribe(ev sched.LifecycleEvent, l sched.LifecycleListener) sched.Subscription {
	if l == nil {
		return subscription{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	if d.listeners[ev] == nil {
		d.listeners[ev] = make(map[uint64]sched.LifecycleListener)
	}
	d.listeners[ev][id] = l
	return subscription{doc: d, ev: ev, id: id}
}

// ListenerCount reports how many listeners are attached for ev.
func (d *Document) ListenerCount(ev sched.LifecycleEvent) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[ev])
}

// SetVisibilityState updates the state and fires visibilitychange if it
// actually changed.
func (d *Document) SetVisibilityState(state sched.VisibilityState) {
	d.mu.Lock()
	if d.visibility == state {
		d.mu.Unlock()
		return
	}
	d.visibility = state
	d.mu.Unlock()
	d.dispatch(sched.VisibilityChange)
}

// BeforeUnload fires beforeunload.
func (d *Document) BeforeUnload() {
	d.dispatch(sched.BeforeUnload)
}

// dispatch calls listeners in registration order, outside the lock so a
// listener may unsubscribe itself.
func (d *Document) dispatch(ev sched.LifecycleEvent) {
	d.mu.Lock()
	ids := make([]uint64, 0, len(d.listeners[ev]))
	for id := range d.listeners[ev] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets := make([]sched.LifecycleListener, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, d.listeners[ev][id])
	}
	d.mu.Unlock()

	for _, l := range targets {
		l.OnLifecycle(ev)
	}
}

type subscription struct {
	doc *Document
	ev  sched.LifecycleEvent
	id  uint64
}

func (s subscription) Unsubscribe() {
	if s.doc == nil {
		return
	}
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	delete(s.doc.listeners[s.ev], s.id)
}
