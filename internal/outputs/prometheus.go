package outputs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idleq/internal/config"
	"idleq/internal/metric"
	"idleq/internal/sched"
)

// PrometheusOutput instruments the queue and exposes recorder timings via
// an HTTP endpoint. It is both a sched.Observer and a metric.Tracker.
type PrometheusOutput struct {
	config   *config.PrometheusConfig
	logger   *logiface.Logger[logiface.Event]
	registry *prometheus.Registry
	server   *http.Server

	mu         sync.Mutex
	dispatched time.Time // of the running task

	// Queue metrics
	queueEvents      *prometheus.CounterVec
	queuePending     prometheus.Gauge
	taskDurationMs   prometheus.Histogram
	yieldRemainingMs prometheus.Histogram

	// Recorder metrics
	timingTotal     *prometheus.CounterVec
	timingValue     *prometheus.GaugeVec
	timingHistogram *prometheus.HistogramVec
}

// NewPrometheusOutput creates the exporter; nil when disabled. Call Start
// to serve it.
func NewPrometheusOutput(cfg *config.PrometheusConfig, logger *logiface.Logger[logiface.Event]) (*PrometheusOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	p := &PrometheusOutput{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	p.queueEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idleq_queue_events_total",
			Help: "Queue status events by kind",
		},
		[]string{"kind"},
	)

	p.queuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "idleq_queue_pending_tasks",
			Help: "Tasks waiting in the queue after the most recent event",
		},
	)

	p.taskDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idleq_queue_task_duration_ms",
			Help:    "Time spent running a single task in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
		},
	)

	p.yieldRemainingMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idleq_queue_yield_remaining_ms",
			Help:    "Idle time left on the deadline when a drain pass yielded",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	buckets := cfg.LatencyBuckets
	if len(buckets) == 0 {
		buckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}

	p.timingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idleq_timing_total",
			Help: "Timings reported by the recorder",
		},
		[]string{"metric"},
	)

	p.timingValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idleq_timing_value",
			Help: "Most recent value of each timing (ms, KB for data consumption)",
		},
		[]string{"metric"},
	)

	p.timingHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idleq_timing_histogram_ms",
			Help:    "Histogram of timing values",
			Buckets: buckets,
		},
		[]string{"metric"},
	)

	p.registry.MustRegister(
		p.queueEvents,
		p.queuePending,
		p.taskDurationMs,
		p.yieldRemainingMs,
		p.timingTotal,
		p.timingValue,
		p.timingHistogram,
	)
	if cfg.IncludeGoMetrics {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return p, nil
}

// Handler serves the registry in the exposition format.
func (p *PrometheusOutput) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Start serves the metrics endpoint in the background.
func (p *PrometheusOutput) Start() {
	if p == nil || p.server != nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(p.config.Path, p.Handler())

	addr := fmt.Sprintf("%s:%d", p.config.ListenAddress, p.config.Port)
	p.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		p.logger.Info().Str("addr", addr).Str("path", p.config.Path).Log("starting prometheus exporter")
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Err().Err(err).Log("prometheus server error")
		}
	}()
}

// OnEvent updates the queue metrics.
func (p *PrometheusOutput) OnEvent(ev sched.StatusEvent) {
	if p == nil {
		return
	}
	p.queueEvents.WithLabelValues(ev.Kind.String()).Inc()
	p.queuePending.Set(float64(ev.Pending))

	switch ev.Kind {
	case sched.StatusDispatch:
		p.mu.Lock()
		p.dispatched = ev.Time
		p.mu.Unlock()
	case sched.StatusFinish, sched.StatusPanic:
		p.mu.Lock()
		start := p.dispatched
		p.dispatched = time.Time{}
		p.mu.Unlock()
		if !start.IsZero() {
			p.taskDurationMs.Observe(float64(ev.Time.Sub(start)) / float64(time.Millisecond))
		}
	case sched.StatusYield:
		p.yieldRemainingMs.Observe(float64(ev.Remaining) / float64(time.Millisecond))
	}
}

// Track records a recorder timing. Navigation timing fields become their
// own series.
func (p *PrometheusOutput) Track(t metric.Timing) {
	if p == nil {
		return
	}
	p.timingTotal.WithLabelValues(t.MetricName).Inc()
	if t.Data == nil {
		p.timingValue.WithLabelValues(t.MetricName).Set(t.Duration)
		p.timingHistogram.WithLabelValues(t.MetricName).Observe(t.Duration)
		return
	}
	for k, v := range t.Data {
		p.timingValue.WithLabelValues(t.MetricName + "." + k).Set(v)
	}
}

// Name returns the output module name
func (p *PrometheusOutput) Name() string {
	return "prometheus"
}

// Close shuts down the HTTP server
func (p *PrometheusOutput) Close() error {
	if p == nil || p.server == nil {
		return nil
	}

	p.logger.Info().Log("shutting down prometheus exporter")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.server.Shutdown(ctx)
}
