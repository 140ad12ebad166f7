package sched

import "time"

// Timers is the host's timer primitive (setTimeout/clearTimeout). Clearing
// an unknown, fired or already cleared id must be a no-op.
type Timers interface {
	SetTimeout(fn func(), delay time.Duration) uint64
	ClearTimeout(id uint64)
}

// IdleCallbacks is a host's native idle scheduling primitive.
type IdleCallbacks interface {
	RequestIdleCallback(cb func(Deadline)) uint64
	CancelIdleCallback(id uint64)
}

// Promises is a host's deferred-execution primitive.
type Promises interface {
	// Signature is the source text of the promise implementation, as a
	// host would print it. Native implementations contain "[native code]".
	Signature() string
	Resolve() Thenable
}

// Thenable is a settled promise.
type Thenable interface {
	Then(fn func())
}

// MutationObservers is a host's DOM mutation observation primitive.
type MutationObservers interface {
	CreateTextNode(data string) TextNode
	NewMutationObserver(callback func()) MutationObserver
}

// TextNode is a detached DOM text node.
type TextNode interface {
	SetData(data string)
}

// MutationObserver delivers batched records for observed nodes.
type MutationObserver interface {
	ObserveCharacterData(node TextNode)
}

// Environment is everything a host can offer the queue. Any method except
// Timers may return nil when the host lacks that capability.
type Environment interface {
	Timers() Timers
	IdleCallbacks() IdleCallbacks
	Promises() Promises
	MutationObservers() MutationObservers
	Lifecycle() Lifecycle
}
