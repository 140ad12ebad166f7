package metric

// NavigationEntry holds the raw navigation timestamps, in milliseconds.
type NavigationEntry struct {
	StartTime         float64
	FetchStart        float64
	WorkerStart       float64
	DomainLookupStart float64
	DomainLookupEnd   float64
	RequestStart      float64
	ResponseStart     float64
	ResponseEnd       float64
	LoadEventEnd      float64
	TransferSize      float64
	EncodedBodySize   float64
}

// NavigationTiming is what gets logged and tracked for a page load.
type NavigationTiming struct {
	FetchTime       float64 `json:"fetch_time"`
	WorkerTime      float64 `json:"worker_time"`
	TotalTime       float64 `json:"total_time"`
	DownloadTime    float64 `json:"download_time"`
	TimeToFirstByte float64 `json:"time_to_first_byte"`
	HeaderSize      float64 `json:"header_size"`
	DNSLookupTime   float64 `json:"dns_lookup_time"`
	PageLoadTime    float64 `json:"page_load_time"` // navigation start to the end of load
}

// Timing derives the navigation metrics from the raw entry.
func (n NavigationEntry) Timing() NavigationTiming {
	worker := 0.0
	if n.WorkerStart > 0 {
		worker = n.ResponseEnd - n.WorkerStart
	}
	return NavigationTiming{
		FetchTime:       round2(n.ResponseEnd - n.FetchStart),
		WorkerTime:      round2(worker),
		TotalTime:       round2(n.ResponseEnd - n.RequestStart),
		DownloadTime:    round2(n.ResponseEnd - n.ResponseStart),
		TimeToFirstByte: round2(n.ResponseStart - n.RequestStart),
		HeaderSize:      round2(n.TransferSize - n.EncodedBodySize),
		DNSLookupTime:   round2(n.DomainLookupEnd - n.DomainLookupStart),
		PageLoadTime:    round2(n.LoadEventEnd - n.StartTime),
	}
}

// Map flattens the timing for trackers.
func (t NavigationTiming) Map() map[string]float64 {
	return map[string]float64{
		"fetch_time":         t.FetchTime,
		"worker_time":        t.WorkerTime,
		"total_time":         t.TotalTime,
		"download_time":      t.DownloadTime,
		"time_to_first_byte": t.TimeToFirstByte,
		"header_size":        t.HeaderSize,
		"dns_lookup_time":    t.DNSLookupTime,
		"page_load_time":     t.PageLoadTime,
	}
}
