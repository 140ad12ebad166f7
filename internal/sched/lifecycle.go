package sched

// VisibilityState mirrors document.visibilityState.
type VisibilityState string

const (
	Visible VisibilityState = "visible"
	Hidden  VisibilityState = "hidden"
)

// LifecycleEvent identifies a page lifecycle signal.
type LifecycleEvent int

const (
	VisibilityChange LifecycleEvent = iota
	BeforeUnload
)

func (e LifecycleEvent) String() string {
	switch e {
	case VisibilityChange:
		return "visibilitychange"
	case BeforeUnload:
		return "beforeunload"
	default:
		return "unknown"
	}
}

// LifecycleListener receives lifecycle signals.
type LifecycleListener interface {
	OnLifecycle(ev LifecycleEvent)
}

// LifecycleFunc adapts a function to LifecycleListener.
type LifecycleFunc func(ev LifecycleEvent)

func (f LifecycleFunc) OnLifecycle(ev LifecycleEvent) { f(ev) }

// Subscription is returned by Lifecycle.Subscribe. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Lifecycle is the page's visibility and unload surface.
type Lifecycle interface {
	VisibilityState() VisibilityState
	// UnloadSignalsReliable is false on hosts that may close a tab without
	// delivering a visibility change, where before-unload must be used too.
	UnloadSignalsReliable() bool
	Subscribe(ev LifecycleEvent, l LifecycleListener) Subscription
}
