package sched

// Option configures a Queue.
type Option func(*queueOptions)

type queueOptions struct {
	env        Environment
	idle       IdleScheduler
	microtasks MicrotaskQueuer
	lifecycle  Lifecycle
	clock      Clock
	observer   Observer
}

// WithEnvironment detects triggers and the lifecycle from a host. Explicit
// WithIdleScheduler, WithMicrotaskQueuer and WithLifecycle take precedence.
func WithEnvironment(env Environment) Option {
	return func(o *queueOptions) { o.env = env }
}

// WithIdleScheduler sets the trigger used for normal drains.
func WithIdleScheduler(s IdleScheduler) Option {
	return func(o *queueOptions) { o.idle = s }
}

// WithMicrotaskQueuer sets the trigger used while the page is hidden.
func WithMicrotaskQueuer(m MicrotaskQueuer) Option {
	return func(o *queueOptions) { o.microtasks = m }
}

// WithLifecycle sets the page lifecycle source.
func WithLifecycle(l Lifecycle) Option {
	return func(o *queueOptions) { o.lifecycle = l }
}

// WithClock sets the clock used for enqueue timestamps and shim deadlines.
func WithClock(c Clock) Option {
	return func(o *queueOptions) { o.clock = c }
}

// WithObserver receives every StatusEvent.
func WithObserver(obs Observer) Option {
	return func(o *queueOptions) { o.observer = obs }
}

// resolve fills the gaps from the environment and defaults.
func (o *queueOptions) resolve(cfg Config) error {
	if o.clock == nil {
		o.clock = SystemClock{}
	}
	if o.env != nil {
		if o.idle == nil {
			o.idle = NewIdleScheduler(o.env.Timers(), o.env.IdleCallbacks(), o.clock, cfg.IdleBudget())
		}
		if o.microtasks == nil {
			o.microtasks = NewMicrotaskQueuer(o.env.Promises(), o.env.MutationObservers())
		}
		if o.lifecycle == nil {
			o.lifecycle = o.env.Lifecycle()
		}
	}
	if o.idle == nil {
		return ErrNoIdleScheduler
	}
	if o.microtasks == nil {
		o.microtasks = DiscardMicrotasks
	}
	return nil
}
