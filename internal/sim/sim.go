// internal/sim/sim.go

package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/logiface"

	"idleq/internal/config"
	"idleq/internal/job"
	"idleq/internal/metric"
	"idleq/internal/page"
	"idleq/internal/sched"
)

// ErrTimeout is returned when the queue has not drained in Options.Timeout.
var ErrTimeout = errors.New("sim: queue did not drain in time")

// Options shapes one simulated page session.
type Options struct {
	Tasks       int           // tasks pushed at page start
	MinTask     time.Duration // shortest task
	MaxTask     time.Duration // longest task
	MinTaskTime time.Duration // reservation per task, 0 uses the queue default
	Work        string        // job.KindSpin (default) or job.KindSleep
	Seed        int64
	HideAfter   time.Duration // 0 keeps the tab visible
	ShowAfter   time.Duration // 0 never brings a hidden tab back
	UnloadAfter time.Duration // 0 never closes the tab
	Timeout     time.Duration // 0 waits for ctx only
}

// Result summarizes a session.
type Result struct {
	ID       string
	Ran      int
	Panicked int
	Yields   int
	Forced   int
	Elapsed  time.Duration

	// Visibility is the page's visibility when the session ended.
	Visibility sched.VisibilityState
}

// counter is the session's own observer. Queue events arrive on the loop,
// Result is read from the caller.
type counter struct {
	ran, panicked, yields, forced atomic.Int64
}

func (c *counter) OnEvent(ev sched.StatusEvent) {
	switch ev.Kind {
	case sched.StatusPanic:
		c.panicked.Add(1)
	case sched.StatusYield:
		c.yields.Add(1)
	case sched.StatusForced:
		c.forced.Add(1)
	}
}

// Run simulates a page that queues Options.Tasks units of busy work at load,
// optionally goes to the background or closes, and reports how the queue
// coped. observer and tracker may be nil.
func Run(ctx context.Context, cfg config.Config, opts Options, logger *logiface.Logger[logiface.Event], observer sched.Observer, tracker metric.Tracker) (Result, error) {
	res := Result{ID: uuid.NewString()}
	if opts.Tasks < 0 {
		return res, fmt.Errorf("sim: negative task count %d", opts.Tasks)
	}
	newWork, err := job.ForKind(opts.Work)
	if err != nil {
		return res, fmt.Errorf("sim: %w", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// 1) the page
	window := page.NewWindow(append(cfg.Page.WindowOptions(), page.WithLogger(logger))...)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() { _ = window.Run(loopCtx) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = window.Shutdown(shutdownCtx)
	}()

	counts := &counter{}
	observers := sched.Observers{counts}
	if observer != nil {
		observers = append(observers, observer)
	}

	var (
		q   *sched.Queue
		rec *metric.Recorder
	)
	plan := job.Plan(opts.Tasks, opts.MinTask, opts.MaxTask, opts.Seed)
	drained := make(chan struct{})
	setupErr := make(chan error, 1)
	start := time.Now()

	// 2) page load: everything below runs on the loop
	err = window.Submit(func() {
		var err error
		q, err = sched.New(cfg.Queue, sched.WithEnvironment(window), sched.WithObserver(observers))
		if err != nil {
			setupErr <- err
			return
		}
		recOpts := []metric.Option{
			metric.WithQueue(q),
			metric.WithLifecycle(window.Document()),
			metric.WithTimers(window.Loop()),
			metric.WithLogger(logger),
			metric.WithBrowser(metric.DetectBrowser(window.UserAgent())),
		}
		if tracker != nil {
			recOpts = append(recOpts, metric.WithTracker(tracker))
		}
		rec = metric.NewRecorder(cfg.Recorder, recOpts...)
		rec.Start("session")
		rec.LogNavigationTiming(navigationEntry(opts.Seed))
		rec.ObserveEntries(loadEntries(opts.Seed))

		var taskOpts []sched.TaskOption
		if opts.MinTaskTime > 0 {
			taskOpts = append(taskOpts, sched.WithMinTaskTime(opts.MinTaskTime))
		}
		// the sentinel queues behind anything the work itself queued
		finish := func() { q.PushTask(func() { close(drained) }) }
		left := len(plan)
		for i, d := range plan {
			d := d
			work := newWork(d)
			firstInput := i == len(plan)/2
			q.PushTask(func() {
				work()
				counts.ran.Add(1)
				if firstInput {
					// the user clicked while this task held the thread
					rec.ObserveEntries([]metric.Entry{{
						Name:      "mousedown",
						EntryType: metric.EntryFirstInput,
						Duration:  float64(d) / float64(time.Millisecond),
					}})
				}
				left--
				if left == 0 {
					finish()
				}
			}, taskOpts...)
		}
		if left == 0 {
			finish()
		}
		setupErr <- nil
	})
	if err != nil {
		return res, err
	}
	select {
	case err := <-setupErr:
		if err != nil {
			return res, err
		}
	case <-ctx.Done():
		return res, ctx.Err()
	}

	// 3) lifecycle script
	if opts.HideAfter > 0 {
		t := time.AfterFunc(opts.HideAfter, func() { _ = window.Hide() })
		defer t.Stop()
	}
	if opts.ShowAfter > 0 {
		t := time.AfterFunc(opts.ShowAfter, func() { _ = window.Show() })
		defer t.Stop()
	}
	if opts.UnloadAfter > 0 {
		t := time.AfterFunc(opts.UnloadAfter, func() { _ = window.Unload() })
		defer t.Stop()
	}

	var waitErr error
	select {
	case <-drained:
	case <-ctx.Done():
		waitErr = ErrTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			waitErr = ctx.Err()
		}
	}

	// 4) tear down on the loop
	tornDown := make(chan struct{})
	if err := window.Submit(func() {
		defer close(tornDown)
		res.Visibility = window.Document().VisibilityState()
		rec.End("session")
		rec.Close()
		q.Destroy()
	}); err == nil {
		<-tornDown
	}

	res.Ran = int(counts.ran.Load())
	res.Panicked = int(counts.panicked.Load())
	res.Yields = int(counts.yields.Load())
	res.Forced = int(counts.forced.Load())
	res.Elapsed = time.Since(start)
	return res, waitErr
}

// loadEntries fakes what a PerformanceObserver sees while a page loads.
func loadEntries(seed int64) []metric.Entry {
	r := rand.New(rand.NewSource(seed))
	entries := []metric.Entry{
		{Name: "first-paint", EntryType: metric.EntryPaint, StartTime: 180},
		{Name: "first-contentful-paint", EntryType: metric.EntryPaint, StartTime: 240},
	}
	for i := 0; i < 4; i++ {
		entries = append(entries, metric.Entry{
			Name:            fmt.Sprintf("asset-%d.js", i),
			EntryType:       metric.EntryResource,
			DecodedBodySize: float64(2000 + r.Int63n(78000)),
		})
	}
	return entries
}

func navigationEntry(seed int64) metric.NavigationEntry {
	jitter := rand.New(rand.NewSource(seed)).Float64() * 20
	return metric.NavigationEntry{
		FetchStart:        1,
		DomainLookupStart: 2,
		DomainLookupEnd:   12 + jitter,
		RequestStart:      30 + jitter,
		ResponseStart:     90 + jitter,
		ResponseEnd:       120 + jitter,
		LoadEventEnd:      400 + jitter,
		TransferSize:      18400,
		EncodedBodySize:   18000,
	}
}
