package sched

import "strings"

// MicrotaskQueuer runs a function before any further timer or idle
// callback. Delivery is best effort: see DiscardMicrotasks.
type MicrotaskQueuer interface {
	QueueMicrotask(fn func())
}

// MicrotaskFunc adapts a function to MicrotaskQueuer.
type MicrotaskFunc func(fn func())

func (f MicrotaskFunc) QueueMicrotask(fn func()) { f(fn) }

// DiscardMicrotasks drops everything. It is what hosts without any
// microtask primitive get.
var DiscardMicrotasks MicrotaskQueuer = MicrotaskFunc(func(func()) {})

const nativeCodeSignature = "[native code]"

// NewMicrotaskQueuer picks native promises, then mutation observers, then
// DiscardMicrotasks. Polyfilled promises are skipped because many of them
// schedule macrotasks.
func NewMicrotaskQueuer(promises Promises, observers MutationObservers) MicrotaskQueuer {
	switch {
	case promises != nil && strings.Contains(promises.Signature(), nativeCodeSignature):
		return promiseMicrotasks{promises}
	case observers != nil:
		return newMutationMicrotasks(observers)
	default:
		return DiscardMicrotasks
	}
}

type promiseMicrotasks struct {
	promises Promises
}

func (p promiseMicrotasks) QueueMicrotask(fn func()) {
	p.promises.Resolve().Then(fn)
}

// mutationMicrotasks emulates microtasks with a single observer watching a
// detached text node. Every enqueue flips the node's data so the observer
// fires once per mutation cycle and flushes the whole batch.
type mutationMicrotasks struct {
	node    TextNode
	pending []func()
	toggle  int
}

func newMutationMicrotasks(observers MutationObservers) *mutationMicrotasks {
	m := &mutationMicrotasks{node: observers.CreateTextNode("")}
	observers.NewMutationObserver(m.flush).ObserveCharacterData(m.node)
	return m
}

func (m *mutationMicrotasks) QueueMicrotask(fn func()) {
	m.pending = append(m.pending, fn)
	m.toggle = (m.toggle + 1) % 2
	if m.toggle == 1 {
		m.node.SetData("1")
	} else {
		m.node.SetData("0")
	}
}

// flush swaps the batch out first, so anything queued while it runs goes
// to the next mutation cycle instead of being dropped.
func (m *mutationMicrotasks) flush() {
	batch := m.pending
	m.pending = nil
	for _, fn := range batch {
		fn()
	}
}
