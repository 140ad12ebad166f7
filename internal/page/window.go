// internal/page/window.go

package page

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"idleq/internal/sched"
)

// NativePromiseSignature is how a host prints its built-in Promise.
const NativePromiseSignature = "function Promise() { [native code] }"

// DefaultUserAgent is what navigator.userAgent reports unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Window is a simulated browsing context: one event loop and one document.
// It implements sched.Environment, and capabilities switched off by options
// are reported as nil.
type Window struct {
	loop *Loop
	doc  *Document

	userAgent        string
	idleCallbacks    bool
	promiseSignature string
	mutationObserver bool
}

// WindowOption configures a Window.
type WindowOption func(*windowOptions)

type windowOptions struct {
	idleCallbacks    bool
	promiseSignature string
	mutationObserver bool
	unreliableUnload bool
	idleBudget       time.Duration
	clock            sched.Clock
	userAgent        string
	logger           *logiface.Logger[logiface.Event]
}

// WithIdleCallbacks toggles native requestIdleCallback (on by default).
func WithIdleCallbacks(enabled bool) WindowOption {
	return func(o *windowOptions) { o.idleCallbacks = enabled }
}

// WithPromiseSignature sets the printed Promise source. Anything without
// "[native code]" looks like a polyfill.
func WithPromiseSignature(signature string) WindowOption {
	return func(o *windowOptions) { o.promiseSignature = signature }
}

// WithoutPromises removes Promise from the window.
func WithoutPromises() WindowOption {
	return func(o *windowOptions) { o.promiseSignature = "" }
}

// WithMutationObserver toggles MutationObserver (on by default).
func WithMutationObserver(enabled bool) WindowOption {
	return func(o *windowOptions) { o.mutationObserver = enabled }
}

// WithUnreliableUnload makes the window behave like a browser that can
// close a tab without a visibilitychange.
func WithUnreliableUnload(unreliable bool) WindowOption {
	return func(o *windowOptions) { o.unreliableUnload = unreliable }
}

// WithIdleBudget sets the length of an idle period.
func WithIdleBudget(d time.Duration) WindowOption {
	return func(o *windowOptions) { o.idleBudget = d }
}

// WithWindowClock sets the loop's clock. A clock that only moves when told
// to, like sched.StepClock, must be followed by Loop().Wake() after each
// advance or due timers wait for the next unrelated wake-up.
func WithWindowClock(c sched.Clock) WindowOption {
	return func(o *windowOptions) { o.clock = c }
}

// WithUserAgent sets navigator.userAgent.
func WithUserAgent(ua string) WindowOption {
	return func(o *windowOptions) { o.userAgent = ua }
}

// WithLogger sets where callback panics are reported.
func WithLogger(l *logiface.Logger[logiface.Event]) WindowOption {
	return func(o *windowOptions) { o.logger = l }
}

// NewWindow creates a window. Call Run to start its loop.
func NewWindow(opts ...WindowOption) *Window {
	o := windowOptions{
		idleCallbacks:    true,
		promiseSignature: NativePromiseSignature,
		mutationObserver: true,
		idleBudget:       sched.DefaultIdleBudget,
		userAgent:        DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Window{
		loop:             NewLoop(o.clock, o.idleBudget, o.logger),
		doc:              NewDocument(!o.unreliableUnload),
		userAgent:        o.userAgent,
		idleCallbacks:    o.idleCallbacks,
		promiseSignature: o.promiseSignature,
		mutationObserver: o.mutationObserver,
	}
}

func (w *Window) Loop() *Loop { return w.loop }

func (w *Window) Document() *Document { return w.doc }

// UserAgent is the window's navigator.userAgent.
func (w *Window) UserAgent() string { return w.userAgent }

// Run runs the window's loop until ctx ends or Shutdown is called.
func (w *Window) Run(ctx context.Context) error { return w.loop.Run(ctx) }

func (w *Window) Shutdown(ctx context.Context) error { return w.loop.Shutdown(ctx) }

// Submit runs fn on the loop as a task.
func (w *Window) Submit(fn func()) error { return w.loop.Submit(fn) }

// Hide switches the tab to the background.
func (w *Window) Hide() error {
	return w.loop.Submit(func() { w.doc.SetVisibilityState(sched.Hidden) })
}

// Show brings the tab back to the foreground.
func (w *Window) Show() error {
	return w.loop.Submit(func() { w.doc.SetVisibilityState(sched.Visible) })
}

// Unload closes the tab. beforeunload always fires; the final
// visibilitychange only fires where unload signals are reliable.
func (w *Window) Unload() error {
	return w.loop.Submit(func() {
		w.doc.BeforeUnload()
		if w.doc.UnloadSignalsReliable() {
			w.doc.SetVisibilityState(sched.Hidden)
		}
	})
}

func (w *Window) Timers() sched.Timers { return w.loop }

func (w *Window) IdleCallbacks() sched.IdleCallbacks {
	if !w.idleCallbacks {
		return nil
	}
	return w.loop
}

func (w *Window) Promises() sched.Promises {
	if w.promiseSignature == "" {
		return nil
	}
	return &promiseHost{signature: w.promiseSignature, loop: w.loop}
}

func (w *Window) MutationObservers() sched.MutationObservers {
	if !w.mutationObserver {
		return nil
	}
	return &observerHost{loop: w.loop}
}

func (w *Window) Lifecycle() sched.Lifecycle { return w.doc }

// promiseHost resolves to promises whose reactions are microtasks.
type promiseHost struct {
	signature string
	loop      *Loop
}

func (p *promiseHost) Signature() string { return p.signature }

func (p *promiseHost) Resolve() sched.Thenable { return resolved{loop: p.loop} }

type resolved struct{ loop *Loop }

func (r resolved) Then(fn func()) { r.loop.QueueMicrotask(fn) }

// observerHost delivers one callback per observer per microtask checkpoint,
// however many mutations happened in between.
type observerHost struct {
	loop *Loop
}

func (h *observerHost) CreateTextNode(data string) sched.TextNode {
	return &textNode{data: data}
}

func (h *observerHost) NewMutationObserver(callback func()) sched.MutationObserver {
	return &mutationObserver{loop: h.loop, callback: callback}
}

type textNode struct {
	mu        sync.Mutex
	data      string
	observers []*mutationObserver
}

func (n *textNode) SetData(data string) {
	n.mu.Lock()
	n.data = data
	observers := append([]*mutationObserver(nil), n.observers...)
	n.mu.Unlock()

	for _, o := range observers {
		o.notify()
	}
}

type mutationObserver struct {
	loop     *Loop
	callback func()

	mu      sync.Mutex
	pending bool
}

func (o *mutationObserver) ObserveCharacterData(node sched.TextNode) {
	n, ok := node.(*textNode)
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.observers {
		if existing == o {
			return
		}
	}
	n.observers = append(n.observers, o)
}

func (o *mutationObserver) notify() {
	o.mu.Lock()
	if o.pending {
		o.mu.Unlock()
		return
	}
	o.pending = true
	o.mu.Unlock()

	o.loop.QueueMicrotask(func() {
		o.mu.Lock()
		o.pending = false
		o.mu.Unlock()
		if o.callback != nil {
			o.callback()
		}
	})
}
