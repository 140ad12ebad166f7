package config

import (
	"time"

	"idleq/internal/logging"
	"idleq/internal/metric"
	"idleq/internal/page"
	"idleq/internal/sched"
)

// Config mirrors config.yml
type Config struct {
	Queue         sched.Config        `yaml:"queue"`
	Page          PageConfig          `yaml:"page"`
	Recorder      metric.Config       `yaml:"recorder"`
	Logging       logging.Config      `yaml:"logging"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
}

// PageConfig describes the simulated host the queue runs in.
type PageConfig struct {
	IdleCallbacks    bool   `yaml:"idle_callbacks"`    // true (by default)
	PromiseSignature string `yaml:"promise_signature"` // native (by default), "" removes Promise
	MutationObserver bool   `yaml:"mutation_observer"` // true (by default)
	UnreliableUnload bool   `yaml:"unreliable_unload"` // false (by default)
	IdleBudgetMS     int    `yaml:"idle_budget_ms"`    // 50 (by default)
	UserAgent        string `yaml:"user_agent"`        // desktop Chrome (by default)
}

// PrometheusConfig configures the /metrics exporter.
type PrometheusConfig struct {
	Enabled          bool      `yaml:"enabled"`            // false (by default)
	ListenAddress    string    `yaml:"listen_address"`     // 0.0.0.0 (by default)
	Port             int       `yaml:"port"`               // 9101 (by default)
	Path             string    `yaml:"path"`               // /metrics (by default)
	IncludeGoMetrics bool      `yaml:"include_go_metrics"` // false (by default)
	LatencyBuckets   []float64 `yaml:"latency_buckets"`    // ms
}

// ElasticsearchConfig configures the timing tracker.
type ElasticsearchConfig struct {
	Enabled       bool          `yaml:"enabled"`       // false (by default)
	Endpoint      string        `yaml:"endpoint"`      // http://localhost:9200 (by default)
	IndexPattern  string        `yaml:"index_pattern"` // idleq-timings-%{+yyyy.MM.dd} (by default)
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	APIKey        string        `yaml:"api_key"`         // takes precedence over username/password
	TLSSkipVerify bool          `yaml:"tls_skip_verify"` // false (by default)
	BulkSize      int           `yaml:"bulk_size_kb"`    // 512 (by default)
	FlushInterval time.Duration `yaml:"flush_interval"`  // 5s (by default)
	MaxRetries    int           `yaml:"max_retries"`     // 3 (by default)
}

// Default returns the configuration used for anything the file leaves out.
func Default() Config {
	return Config{
		Queue:    sched.DefaultConfig(),
		Recorder: metric.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
		Page: PageConfig{
			IdleCallbacks:    true,
			PromiseSignature: page.NativePromiseSignature,
			MutationObserver: true,
			IdleBudgetMS:     int(sched.DefaultIdleBudget / time.Millisecond),
			UserAgent:        page.DefaultUserAgent,
		},
		Prometheus: PrometheusConfig{
			ListenAddress: "0.0.0.0",
			Port:          9101,
			Path:          "/metrics",
		},
		Elasticsearch: ElasticsearchConfig{
			Endpoint:      "http://localhost:9200",
			IndexPattern:  "idleq-timings-%{+yyyy.MM.dd}",
			BulkSize:      512,
			FlushInterval: 5 * time.Second,
			MaxRetries:    3,
		},
	}
}

// Sanitize applies the sanity clamps to every section.
func (c Config) Sanitize() Config {
	c.Queue = c.Queue.Sanitize()
	c.Recorder = c.Recorder.Sanitize()
	if c.Page.IdleBudgetMS <= 0 {
		c.Page.IdleBudgetMS = int(sched.DefaultIdleBudget / time.Millisecond)
	}
	if c.Prometheus.Port <= 0 {
		c.Prometheus.Port = 9101
	}
	if c.Prometheus.Path == "" {
		c.Prometheus.Path = "/metrics"
	}
	if c.Elasticsearch.BulkSize <= 0 {
		c.Elasticsearch.BulkSize = 512
	}
	if c.Elasticsearch.FlushInterval <= 0 {
		c.Elasticsearch.FlushInterval = 5 * time.Second
	}
	if c.Elasticsearch.MaxRetries < 0 {
		c.Elasticsearch.MaxRetries = 0
	}
	return c
}

// WindowOptions turns the page section into page.Window options.
func (p PageConfig) WindowOptions() []page.WindowOption {
	opts := []page.WindowOption{
		page.WithIdleCallbacks(p.IdleCallbacks),
		page.WithMutationObserver(p.MutationObserver),
		page.WithUnreliableUnload(p.UnreliableUnload),
		page.WithIdleBudget(time.Duration(p.IdleBudgetMS) * time.Millisecond),
	}
	if p.UserAgent != "" {
		opts = append(opts, page.WithUserAgent(p.UserAgent))
	}
	if p.PromiseSignature == "" {
		opts = append(opts, page.WithoutPromises())
	} else {
		opts = append(opts, page.WithPromiseSignature(p.PromiseSignature))
	}
	return opts
}
