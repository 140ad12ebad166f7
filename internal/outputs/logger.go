package outputs

import (
	"github.com/joeycumines/logiface"

	"idleq/internal/metric"
	"idleq/internal/sched"
)

// LogObserver writes queue events and timings as structured log lines.
type LogObserver struct {
	logger *logiface.Logger[logiface.Event]
}

// NewLogObserver creates a log output. A nil logger drops everything.
func NewLogObserver(logger *logiface.Logger[logiface.Event]) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnEvent logs one queue event. Per-task chatter is debug level.
func (l *LogObserver) OnEvent(ev sched.StatusEvent) {
	var b *logiface.Builder[logiface.Event]
	switch ev.Kind {
	case sched.StatusPanic:
		b = l.logger.Err().Err(ev.Err)
	case sched.StatusForced, sched.StatusClear, sched.StatusDestroy:
		b = l.logger.Info()
	case sched.StatusYield:
		b = l.logger.Debug().Dur("remaining", ev.Remaining).Dur("min_task_time", ev.MinTaskTime)
	default:
		b = l.logger.Debug()
	}
	b.Str("kind", ev.Kind.String()).
		Int("pending", ev.Pending).
		Log("queue")
}

// Track logs one timing.
func (l *LogObserver) Track(t metric.Timing) {
	b := l.logger.Info().
		Str("id", t.ID).
		Str("session", t.Session).
		Str("metric", t.MetricName)
	if t.Duration != 0 {
		b = b.Float64("duration", t.Duration)
	}
	for k, v := range t.Data {
		b = b.Float64(k, v)
	}
	b.Log("timing")
}

// Name returns the output module name
func (l *LogObserver) Name() string {
	return "logger"
}
