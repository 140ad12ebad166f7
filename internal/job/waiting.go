package job

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"idleq/internal/sched"
)

// Kinds of canned work.
const (
	KindSpin  = "spin"
	KindSleep = "sleep"
)

// ErrUnknownKind is returned by ForKind for anything but KindSpin/KindSleep.
var ErrUnknownKind = errors.New("job: unknown work kind")

// SleepWork returns a task that blocks the loop for d without using the
// CPU, the way a synchronous XHR would.
func SleepWork(d time.Duration) sched.Task {
	return func() {
		time.Sleep(d)
	}
}

// Spin returns a task that keeps the CPU busy for d, the way a long
// synchronous script would.
func Spin(d time.Duration) sched.Task {
	return func() {
		start := time.Now()
		for time.Since(start) < d {
		}
	}
}

// Plan draws n task lengths uniformly from [lo, hi], reproducibly for a
// given seed.
func Plan(n int, lo, hi time.Duration, seed int64) []time.Duration {
	if n <= 0 {
		return nil
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	r := rand.New(rand.NewSource(seed))
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = lo
		if span := int64(hi - lo); span > 0 {
			out[i] += time.Duration(r.Int63n(span + 1))
		}
	}
	return out
}

// ForKind returns the constructor for kind. An empty kind means KindSpin.
func ForKind(kind string) (func(time.Duration) sched.Task, error) {
	switch kind {
	case "", KindSpin:
		return Spin, nil
	case KindSleep:
		return SleepWork, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
