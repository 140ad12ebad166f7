// internal/page/loop.go

package page

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/joeycumines/logiface"

	"idleq/internal/sched"
)

var (
	// ErrLoopAlreadyRunning is returned by Run if the loop was started before.
	ErrLoopAlreadyRunning = errors.New("page: loop is already running")
	// ErrLoopTerminated is returned when work is submitted after shutdown.
	ErrLoopTerminated = errors.New("page: loop has been terminated")
)

// Loop is a single goroutine event loop in the browser's mould: timers,
// then submitted tasks, each followed by a microtask checkpoint, and idle
// callbacks only when there is nothing else to do.
//
// Registration methods are safe to call from any goroutine. Callbacks
// always run on the goroutine that called Run.
type Loop struct {
	clock      sched.Clock
	idleBudget time.Duration
	logger     *logiface.Logger[logiface.Event]

	mu         sync.Mutex
	ingress    []func()
	microtasks []func()
	timers     *redblacktree.Tree // timerKey -> func()
	timerKeys  map[uint64]timerKey
	idle       []idleRequest
	idleLive   map[uint64]struct{} // requested, not yet run or cancelled
	nextID     uint64
	started    bool
	stopping   bool
	terminated bool

	wake chan struct{}
	done chan struct{}
}

type idleRequest struct {
	id uint64
	cb func(sched.Deadline)
}

// NewLoop creates a loop that is not running yet. The logger may be nil.
func NewLoop(clock sched.Clock, idleBudget time.Duration, logger *logiface.Logger[logiface.Event]) *Loop {
	if clock == nil {
		clock = sched.SystemClock{}
	}
	if idleBudget <= 0 {
		idleBudget = sched.DefaultIdleBudget
	}
	return &Loop{
		clock:      clock,
		idleBudget: idleBudget,
		logger:     logger,
		timers:     redblacktree.NewWith(cmp),
		timerKeys:  make(map[uint64]timerKey),
		idleLive:   make(map[uint64]struct{}),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run processes work until ctx is done or Shutdown is called.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrLoopAlreadyRunning
	}
	l.started = true
	l.mu.Unlock()

	defer close(l.done)

	for {
		// 1) check shutdown
		if err := ctx.Err(); err != nil {
			l.terminate()
			return err
		}
		l.mu.Lock()
		stopping := l.stopping
		l.mu.Unlock()
		if stopping {
			// finish what was already submitted, drop timers and idle work
			for l.runIngress() {
			}
			l.terminate()
			return nil
		}

		// 2) do one round of work, or sleep until there is some
		if l.tick() {
			continue
		}
		l.sleep(ctx)
	}
}

// Shutdown stops the loop after the tasks already submitted have run, and
// waits for it to exit.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.terminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.stopping = true
	started := l.started
	l.mu.Unlock()

	if !started {
		l.mu.Lock()
		l.started = true
		l.mu.Unlock()
		l.terminate()
		close(l.done)
		return nil
	}
	l.signal()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake makes a sleeping loop look at its timers again. Loops driven by a
// clock that does not advance on its own, such as sched.StepClock, need
// it after every Advance.
func (l *Loop) Wake() {
	l.signal()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Submit queues fn as a macrotask.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.terminated || l.stopping {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.ingress = append(l.ingress, fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// QueueMicrotask queues fn for the next microtask checkpoint.
func (l *Loop) QueueMicrotask(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.terminated {
		l.mu.Unlock()
		return
	}
	l.microtasks = append(l.microtasks, fn)
	l.mu.Unlock()
	l.signal()
}

// SetTimeout runs fn once after delay. It returns 0 once the loop is gone.
func (l *Loop) SetTimeout(fn func(), delay time.Duration) uint64 {
	if fn == nil {
		return 0
	}
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	if l.terminated {
		l.mu.Unlock()
		return 0
	}
	l.nextID++
	key := timerKey{when: l.clock.Now().Add(delay), id: l.nextID}
	l.timers.Put(key, fn)
	l.timerKeys[key.id] = key
	l.mu.Unlock()
	l.signal()
	return key.id
}

// ClearTimeout cancels a pending timer. Unknown ids are ignored.
func (l *Loop) ClearTimeout(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key, ok := l.timerKeys[id]; ok {
		l.timers.Remove(key)
		delete(l.timerKeys, id)
	}
}

// RequestIdleCallback runs cb during the next idle period.
func (l *Loop) RequestIdleCallback(cb func(sched.Deadline)) uint64 {
	if cb == nil {
		return 0
	}
	l.mu.Lock()
	if l.terminated {
		l.mu.Unlock()
		return 0
	}
	l.nextID++
	id := l.nextID
	l.idle = append(l.idle, idleRequest{id: id, cb: cb})
	l.idleLive[id] = struct{}{}
	l.mu.Unlock()
	l.signal()
	return id
}

// CancelIdleCallback cancels a pending idle callback, including one later
// in the idle period that is running. Unknown ids are ignored.
func (l *Loop) CancelIdleCallback(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.idleLive[id]; !ok {
		return
	}
	delete(l.idleLive, id)
	for i, req := range l.idle {
		if req.id == id {
			l.idle = append(l.idle[:i], l.idle[i+1:]...)
			return
		}
	}
}

// tick runs due timers, then submitted tasks; if neither had anything, it
// runs one idle period. It reports whether anything ran.
func (l *Loop) tick() bool {
	ran := false
	for {
		fn := l.popDueTimer()
		if fn == nil {
			break
		}
		l.execute(fn)
		ran = true
	}
	if l.runIngress() {
		ran = true
	}
	// microtasks queued from outside the loop have no task to follow
	if l.drainMicrotasks() {
		ran = true
	}
	if ran {
		return true
	}
	return l.runIdlePeriod()
}

func (l *Loop) runIngress() bool {
	l.mu.Lock()
	batch := l.ingress
	l.ingress = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.execute(fn)
	}
	return len(batch) > 0
}

// runIdlePeriod hands every idle request made before it started one shared
// deadline, cut short by the next timer.
func (l *Loop) runIdlePeriod() bool {
	l.mu.Lock()
	batch := l.idle
	l.idle = nil
	budget := l.idleBudget
	now := l.clock.Now()
	if node := l.timers.Left(); node != nil {
		if untilTimer := node.Key.(timerKey).when.Sub(now); untilTimer < budget {
			budget = untilTimer
		}
	}
	l.mu.Unlock()

	if len(batch) == 0 {
		return false
	}
	if budget < 0 {
		budget = 0
	}
	deadline := sched.NewDeadline(l.clock, now, budget)
	for _, req := range batch {
		// an earlier callback in this period may have cancelled it
		l.mu.Lock()
		_, live := l.idleLive[req.id]
		delete(l.idleLive, req.id)
		l.mu.Unlock()
		if !live {
			continue
		}
		cb := req.cb
		l.execute(func() { cb(deadline) })
	}
	return true
}

func (l *Loop) popDueTimer() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	node := l.timers.Left()
	if node == nil {
		return nil
	}
	key := node.Key.(timerKey)
	if key.when.After(l.clock.Now()) {
		return nil
	}
	l.timers.Remove(key)
	delete(l.timerKeys, key.id)
	return node.Value.(func())
}

// safeExecute runs a callback with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Err().
				Str("panic", fmt.Sprint(r)).
				Log("page: callback panicked")
		}
	}()
	fn()
}

// execute runs one macrotask and then the microtask checkpoint.
func (l *Loop) execute(fn func()) {
	l.safeExecute(fn)
	l.drainMicrotasks()
}

func (l *Loop) drainMicrotasks() bool {
	ran := false
	for {
		l.mu.Lock()
		if len(l.microtasks) == 0 {
			l.mu.Unlock()
			return ran
		}
		fn := l.microtasks[0]
		l.microtasks = l.microtasks[1:]
		l.mu.Unlock()

		l.safeExecute(fn)
		ran = true
	}
}

// sleep blocks until new work arrives, the next timer is due, or ctx ends.
func (l *Loop) sleep(ctx context.Context) {
	l.mu.Lock()
	var timerC <-chan time.Time
	if node := l.timers.Left(); node != nil {
		d := node.Key.(timerKey).when.Sub(l.clock.Now())
		if d <= 0 {
			l.mu.Unlock()
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timerC = t.C
	}
	l.mu.Unlock()

	select {
	case <-l.wake:
	case <-timerC:
	case <-ctx.Done():
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) terminate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminated = true
	l.stopping = true
	l.ingress = nil
	l.microtasks = nil
	l.idle = nil
	l.idleLive = make(map[uint64]struct{})
	l.timers.Clear()
	l.timerKeys = make(map[uint64]timerKey)
}

// timerKey is used as a key in the red-black tree.
type timerKey struct {
	when time.Time
	id   uint64
}

// cmp orders timers by due time, then by creation order.
func cmp(a, b any) int {
	ka, kb := a.(timerKey), b.(timerKey)
	switch {
	case ka.when.Before(kb.when):
		return -1
	case ka.when.After(kb.when):
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}
