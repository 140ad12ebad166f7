// internal/metric/recorder.go

package metric

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/logiface"

	"idleq/internal/sched"
)

const (
	warnMissingName    = "Please provide a metric name"
	warnAlreadyStarted = "Recording already started."
	warnAlreadyStopped = "Recording already stopped."
)

// Pusher is where the recorder defers its logging and tracking work. A
// *sched.Queue is one.
type Pusher interface {
	PushTask(task sched.Task, opts ...sched.TaskOption)
}

// Recorder measures page timings and reports them without competing with
// the page for the main thread: every report is a queued task.
//
// Like the queue it feeds, a Recorder must only be used from the host's
// loop goroutine.
type Recorder struct {
	cfg     Config
	session string

	queue     Pusher
	lifecycle sched.Lifecycle
	timers    sched.Timers
	clock     sched.Clock
	logger    *logiface.Logger[logiface.Event]
	tracker   Tracker
	browser   *Browser
	random    func() float64

	marks  map[string]time.Time
	hidden bool
	subs   []sched.Subscription

	paintObserving    bool
	inputObserving    bool
	dataObserving     bool
	dataTimeout       uint64
	navigation        NavigationTiming
	firstPaint        float64
	firstContentful   float64
	firstInputDelay   float64
	dataConsumptionKB float64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithQueue defers reports to q. Without it reports run inline.
func WithQueue(q Pusher) Option { return func(r *Recorder) { r.queue = q } }

// WithLifecycle makes the recorder go quiet once the page is hidden.
func WithLifecycle(l sched.Lifecycle) Option { return func(r *Recorder) { r.lifecycle = l } }

// WithTimers is needed for EndPaint and the data consumption cut-off.
func WithTimers(t sched.Timers) Option { return func(r *Recorder) { r.timers = t } }

func WithClock(c sched.Clock) Option { return func(r *Recorder) { r.clock = c } }

func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithTracker sends sampled timings to t.
func WithTracker(t Tracker) Option { return func(r *Recorder) { r.tracker = t } }

// WithBrowser attaches b to every Timing.
func WithBrowser(b Browser) Option { return func(r *Recorder) { r.browser = &b } }

// WithRandom replaces the sample rate's random source, returning [0,1).
func WithRandom(f func() float64) Option { return func(r *Recorder) { r.random = f } }

// NewRecorder starts observing. Close releases the lifecycle listeners and
// the data consumption timer.
func NewRecorder(cfg Config, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:     cfg.Sanitize(),
		session: uuid.NewString(),
		clock:   sched.SystemClock{},
		random:  rand.Float64,
		marks:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.paintObserving = r.cfg.FirstPaint || r.cfg.FirstContentfulPaint
	r.inputObserving = true
	if r.cfg.DataConsumption {
		r.dataObserving = true
		if r.timers != nil {
			cutoff := time.Duration(r.cfg.DataConsumptionTimeoutMS * float64(time.Millisecond))
			r.dataTimeout = r.timers.SetTimeout(r.disconnectDataConsumption, cutoff)
		}
	}

	if r.lifecycle != nil {
		h := sched.LifecycleFunc(r.didVisibilityChange)
		r.subs = append(r.subs, r.lifecycle.Subscribe(sched.VisibilityChange, h))
		if r.cfg.InApp || !r.lifecycle.UnloadSignalsReliable() {
			r.subs = append(r.subs, r.lifecycle.Subscribe(sched.BeforeUnload, h))
		}
	}
	return r
}

// Session identifies this recorder in every Timing it sends.
func (r *Recorder) Session() string { return r.session }

// Start begins measuring name.
func (r *Recorder) Start(name string) {
	if !r.checkMetricName(name) {
		return
	}
	if _, ok := r.marks[name]; ok {
		r.logWarn(warnAlreadyStarted)
		return
	}
	r.marks[name] = r.clock.Now()
	// a new measurement means the page is in use again
	r.hidden = false
}

// End stops measuring name and returns the duration in milliseconds,
// rounded to two decimals. Logging and tracking happen in a queued task.
func (r *Recorder) End(name string) (float64, bool) {
	if !r.checkMetricName(name) {
		return 0, false
	}
	start, ok := r.marks[name]
	if !ok {
		r.logWarn(warnAlreadyStopped)
		return 0, false
	}
	delete(r.marks, name)
	duration := round2(millis(r.clock.Now().Sub(start)))

	r.pushTask(func() {
		r.log(name, duration, nil, "ms")
		r.sendTiming(name, duration, nil)
	})
	return duration, true
}

// EndPaint ends name from a zero delay timer, after the browser had its
// chance to paint. done may be nil.
func (r *Recorder) EndPaint(name string, done func(duration float64, ok bool)) {
	end := func() {
		d, ok := r.End(name)
		if done != nil {
			done(d, ok)
		}
	}
	if r.timers == nil {
		end()
		return
	}
	r.timers.SetTimeout(end, 0)
}

// ObserveEntries feeds performance timeline entries to the recorder, the
// way a PerformanceObserver callback would.
func (r *Recorder) ObserveEntries(entries []Entry) {
	var paints, inputs []Entry
	for _, e := range entries {
		switch e.EntryType {
		case EntryPaint:
			paints = append(paints, e)
		case EntryFirstInput:
			inputs = append(inputs, e)
		case EntryResource:
			r.digestResource(e)
		}
	}
	if len(paints) > 0 {
		r.digestPaints(paints)
	}
	if len(inputs) > 0 {
		r.digestFirstInputs(inputs)
	}
}

func (r *Recorder) digestPaints(entries []Entry) {
	if !r.paintObserving {
		return
	}
	r.logDebug("digestPaints", len(entries))
	for _, e := range entries {
		e := e
		r.pushTask(func() {
			switch {
			case r.cfg.FirstPaint && e.Name == "first-paint":
				r.logMetric(e.StartTime, "First Paint", FirstPaint, "ms")
			case r.cfg.FirstContentfulPaint && e.Name == "first-contentful-paint":
				r.logMetric(e.StartTime, "First Contentful Paint", FirstContentfulPaint, "ms")
			}
		})
		if e.Name == "first-contentful-paint" {
			r.paintObserving = false
		}
	}
}

func (r *Recorder) digestFirstInputs(entries []Entry) {
	if !r.inputObserving {
		return
	}
	r.logDebug("digestFirstInputs", len(entries))
	for _, e := range entries {
		e := e
		r.pushTask(func() {
			if r.cfg.FirstInputDelay {
				r.logMetric(e.Duration, "First Input Delay", FirstInputDelay, "ms")
			}
		})
	}
	r.inputObserving = false
	r.disconnectDataConsumption()
}

func (r *Recorder) digestResource(e Entry) {
	if !r.dataObserving || e.DecodedBodySize <= 0 {
		return
	}
	r.dataConsumptionKB += round2(e.DecodedBodySize / 1000)
}

// disconnectDataConsumption reports the accumulated KB once, on the first
// input or at the cut-off, whichever comes first.
func (r *Recorder) disconnectDataConsumption() {
	if r.timers != nil && r.dataTimeout != 0 {
		r.timers.ClearTimeout(r.dataTimeout)
		r.dataTimeout = 0
	}
	if !r.dataObserving || r.dataConsumptionKB == 0 {
		return
	}
	r.dataObserving = false
	r.logMetric(r.dataConsumptionKB, "Data Consumption", DataConsumption, "Kb")
}

// LogNavigationTiming reports the page's navigation timing.
func (r *Recorder) LogNavigationTiming(entry NavigationEntry) {
	if !r.cfg.NavigationTiming {
		return
	}
	r.navigation = entry.Timing()
	data := r.navigation.Map()
	r.log(NavigationTimingName, 0, data, "")
	r.sendTiming(NavigationTimingName, 0, data)
}

// NavigationTiming is the last reported navigation timing, zero when the
// metric is switched off.
func (r *Recorder) NavigationTiming() NavigationTiming { return r.navigation }

func (r *Recorder) FirstPaint() float64 { return r.firstPaint }

func (r *Recorder) FirstContentfulPaint() float64 { return r.firstContentful }

func (r *Recorder) FirstInputDelay() float64 { return r.firstInputDelay }

// DataConsumption is in KB.
func (r *Recorder) DataConsumption() float64 { return r.dataConsumptionKB }

// Hidden reports whether the page went to the background since the last
// Start.
func (r *Recorder) Hidden() bool { return r.hidden }

// Close detaches the recorder from the page.
func (r *Recorder) Close() {
	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.subs = nil
	if r.timers != nil && r.dataTimeout != 0 {
		r.timers.ClearTimeout(r.dataTimeout)
		r.dataTimeout = 0
	}
}

// didVisibilityChange only ever latches hidden, a hidden page must not
// report values measured across the switch.
func (r *Recorder) didVisibilityChange(sched.LifecycleEvent) {
	if r.lifecycle.VisibilityState() == sched.Hidden {
		r.hidden = true
	}
}

// logMetric filters out false negatives, stores the value and reports it.
func (r *Recorder) logMetric(value float64, logText, metricName, suffix string) {
	value = round2(value)
	if metricName == DataConsumption {
		if value > r.cfg.MaxDataConsumptionKB {
			return
		}
	} else if value > r.cfg.MaxMeasureTimeMS {
		return
	}

	switch metricName {
	case FirstPaint:
		r.firstPaint = value
	case FirstContentfulPaint:
		r.firstContentful = value
	case FirstInputDelay:
		r.firstInputDelay = value
	}

	r.log(logText, value, nil, suffix)
	r.sendTiming(metricName, value, nil)
}

func (r *Recorder) log(metricName string, duration float64, data map[string]float64, suffix string) {
	if r.hidden || !r.cfg.Logging {
		return
	}
	if metricName == "" {
		r.logWarn(warnMissingName)
		return
	}
	switch {
	case duration != 0:
		r.logger.Info().
			Str("prefix", r.cfg.LogPrefix).
			Str("metric", metricName).
			Float64("value", duration).
			Str("unit", suffix).
			Log("metric")
	case data != nil:
		b := r.logger.Info().
			Str("prefix", r.cfg.LogPrefix).
			Str("metric", metricName)
		for k, v := range data {
			b = b.Float64(k, v)
		}
		b.Log("metric")
	}
}

func (r *Recorder) sendTiming(metricName string, duration float64, data map[string]float64) {
	if r.hidden || r.tracker == nil {
		return
	}
	if r.random() >= r.cfg.SampleRate {
		return
	}
	r.tracker.Track(Timing{
		ID:         uuid.NewString(),
		Session:    r.session,
		MetricName: metricName,
		Duration:   duration,
		Data:       data,
		Browser:    r.browser,
		Timestamp:  r.clock.Now(),
	})
}

func (r *Recorder) checkMetricName(name string) bool {
	if name != "" {
		return true
	}
	r.logWarn(warnMissingName)
	return false
}

func (r *Recorder) logWarn(msg string) {
	if !r.cfg.Warning || !r.cfg.Logging {
		return
	}
	r.logger.Warning().Str("prefix", r.cfg.LogPrefix).Log(msg)
}

func (r *Recorder) logDebug(method string, n int) {
	if !r.cfg.Debugging {
		return
	}
	r.logger.Debug().Str("method", method).Int("entries", n).Log("recorder debugging")
}

func (r *Recorder) pushTask(fn func()) {
	if r.queue == nil {
		fn()
		return
	}
	r.queue.PushTask(fn)
}
