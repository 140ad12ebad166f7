package metric

import (
	"math"
	"time"
)

// Metric names used in Timing.MetricName.
const (
	FirstPaint           = "firstPaint"
	FirstContentfulPaint = "firstContentfulPaint"
	FirstInputDelay      = "firstInputDelay"
	DataConsumption      = "dataConsumption"
	NavigationTimingName = "NavigationTiming"
)

// Timing is one measurement handed to a Tracker.
type Timing struct {
	ID         string             `json:"id"`
	Session    string             `json:"session"`
	MetricName string             `json:"metric_name"`
	Duration   float64            `json:"duration,omitempty"` // ms, or KB for data consumption
	Data       map[string]float64 `json:"data,omitempty"`
	Browser    *Browser           `json:"browser,omitempty"`
	Timestamp  time.Time          `json:"@timestamp"`
}

// Tracker receives timings that passed the sample gate.
type Tracker interface {
	Track(t Timing)
}

// TrackerFunc adapts a function to Tracker.
type TrackerFunc func(t Timing)

func (f TrackerFunc) Track(t Timing) { f(t) }

// Trackers fans one timing out to several trackers.
type Trackers []Tracker

func (ts Trackers) Track(t Timing) {
	for _, tr := range ts {
		if tr != nil {
			tr.Track(t)
		}
	}
}

// Entry is a performance timeline entry as a PerformanceObserver would
// deliver it. Times are in milliseconds since navigation start.
type Entry struct {
	Name            string
	EntryType       string // paint, first-input, resource
	StartTime       float64
	Duration        float64
	DecodedBodySize float64 // bytes, resource entries only
}

// Entry types the recorder understands.
const (
	EntryPaint      = "paint"
	EntryFirstInput = "first-input"
	EntryResource   = "resource"
)

// round2 keeps two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// millis converts a duration to fractional milliseconds.
func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
