package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idleq/internal/config"
	"idleq/internal/job"
	"idleq/internal/metric"
	"idleq/internal/sched"
)

type timings struct {
	mu  sync.Mutex
	got []metric.Timing
}

func (ts *timings) Track(t metric.Timing) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.got = append(ts.got, t)
}

func (ts *timings) browsers() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []string
	for _, t := range ts.got {
		if t.Browser != nil {
			out = append(out, t.Browser.Name)
		}
	}
	return out
}

func (ts *timings) names() map[string]bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make(map[string]bool)
	for _, t := range ts.got {
		out[t.MetricName] = true
	}
	return out
}

func TestRun_drainsEveryTask(t *testing.T) {
	cfg := config.Default()
	cfg.Recorder.FirstPaint = true
	cfg.Recorder.FirstContentfulPaint = true
	cfg.Recorder.FirstInputDelay = true
	cfg.Recorder.DataConsumption = true
	cfg.Recorder.NavigationTiming = true
	tr := &timings{}

	res, err := Run(context.Background(), cfg, Options{
		Tasks:   12,
		MinTask: time.Millisecond,
		MaxTask: 3 * time.Millisecond,
		Seed:    1,
		Timeout: 10 * time.Second,
	}, nil, nil, tr)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 12, res.Ran)
	assert.Zero(t, res.Panicked)
	assert.Zero(t, res.Forced)

	names := tr.names()
	for _, n := range []string{
		metric.NavigationTimingName,
		metric.FirstPaint,
		metric.FirstContentfulPaint,
		metric.FirstInputDelay,
		metric.DataConsumption,
	} {
		assert.True(t, names[n], n)
	}
	assert.Len(t, tr.browsers(), len(tr.got))
	for _, name := range tr.browsers() {
		assert.Equal(t, "chrome", name)
	}
}

func TestRun_bigTasksYield(t *testing.T) {
	cfg := config.Default()
	res, err := Run(context.Background(), cfg, Options{
		Tasks:       6,
		MinTask:     15 * time.Millisecond,
		MaxTask:     15 * time.Millisecond,
		MinTaskTime: 20 * time.Millisecond,
		Timeout:     10 * time.Second,
	}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Ran)
	assert.Positive(t, res.Yields)
}

func TestRun_hidingForcesTheRest(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.EnsureTasksRun = true
	var events []sched.StatusKind
	var mu sync.Mutex
	obs := sched.ObserverFunc(func(ev sched.StatusEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Kind)
	})

	res, err := Run(context.Background(), cfg, Options{
		Tasks:       40,
		MinTask:     5 * time.Millisecond,
		MaxTask:     5 * time.Millisecond,
		MinTaskTime: 40 * time.Millisecond,
		HideAfter:   time.Millisecond,
		Timeout:     10 * time.Second,
	}, nil, obs, nil)
	require.NoError(t, err)

	assert.Equal(t, 40, res.Ran)
	assert.Equal(t, 1, res.Forced)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, sched.StatusForced)
	assert.Equal(t, sched.StatusDestroy, events[len(events)-1])
}

func TestRun_hiddenThenShownAgain(t *testing.T) {
	res, err := Run(context.Background(), config.Default(), Options{
		Tasks:     20,
		MinTask:   2 * time.Millisecond,
		MaxTask:   2 * time.Millisecond,
		Work:      job.KindSleep,
		HideAfter: time.Millisecond,
		ShowAfter: 5 * time.Millisecond,
		Timeout:   10 * time.Second,
	}, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 20, res.Ran)
	assert.Zero(t, res.Forced)
	assert.Equal(t, sched.Visible, res.Visibility)
}

func TestRun_unknownWork(t *testing.T) {
	_, err := Run(context.Background(), config.Default(), Options{Tasks: 1, Work: "yield"}, nil, nil, nil)
	assert.ErrorIs(t, err, job.ErrUnknownKind)
}

func TestRun_noTasks(t *testing.T) {
	res, err := Run(context.Background(), config.Default(), Options{Timeout: time.Second}, nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Ran)
}

func TestRun_negativeTasks(t *testing.T) {
	_, err := Run(context.Background(), config.Default(), Options{Tasks: -1}, nil, nil, nil)
	assert.Error(t, err)
}

func TestRun_timeout(t *testing.T) {
	res, err := Run(context.Background(), config.Default(), Options{
		Tasks:   50,
		MinTask: 20 * time.Millisecond,
		MaxTask: 20 * time.Millisecond,
		Timeout: 30 * time.Millisecond,
	}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, res.Ran, 50)
}
