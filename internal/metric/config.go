package metric

// Config mirrors the recorder section of the config file
type Config struct {
	// which page metrics are reported
	FirstPaint           bool `yaml:"first_paint"`            // false (by default)
	FirstContentfulPaint bool `yaml:"first_contentful_paint"` // false (by default)
	FirstInputDelay      bool `yaml:"first_input_delay"`      // false (by default)
	DataConsumption      bool `yaml:"data_consumption"`       // false (by default)
	NavigationTiming     bool `yaml:"navigation_timing"`      // false (by default)

	LogPrefix            string  `yaml:"log_prefix"`              // "idleq:" (by default)
	Logging              bool    `yaml:"logging"`                 // true (by default)
	Warning              bool    `yaml:"warning"`                 // false (by default)
	Debugging            bool    `yaml:"debugging"`               // false (by default)
	MaxMeasureTimeMS     float64 `yaml:"max_measure_time_ms"`     // 15000 (by default)
	MaxDataConsumptionKB float64 `yaml:"max_data_consumption_kb"` // 20000 (by default)

	// resources loaded after this are not counted as data consumption
	DataConsumptionTimeoutMS float64 `yaml:"data_consumption_timeout_ms"` // 15000 (by default)

	// InApp also listens for before-unload, as embedded web views often
	// skip the final visibility change.
	InApp      bool    `yaml:"in_app"`      // true (by default)
	SampleRate float64 `yaml:"sample_rate"` // 1 (by default), 0..1
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() Config {
	return Config{
		LogPrefix:                "idleq:",
		Logging:                  true,
		MaxMeasureTimeMS:         15000,
		MaxDataConsumptionKB:     20000,
		DataConsumptionTimeoutMS: 15000,
		InApp:                    true,
		SampleRate:               1,
	}
}

// Sanitize applies the sanity clamps
func (c Config) Sanitize() Config {
	if c.MaxMeasureTimeMS <= 0 {
		c.MaxMeasureTimeMS = 15000
	}
	if c.MaxDataConsumptionKB <= 0 {
		c.MaxDataConsumptionKB = 20000
	}
	if c.DataConsumptionTimeoutMS <= 0 {
		c.DataConsumptionTimeoutMS = 15000
	}
	if c.SampleRate < 0 {
		c.SampleRate = 0
	}
	if c.SampleRate > 1 {
		c.SampleRate = 1
	}
	return c
}
