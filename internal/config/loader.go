package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Load reads YAML over the defaults, then the IDLEQ_* environment, then
// clamps. An empty path or a missing file means defaults only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := LoadFromEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg.Sanitize(), nil
}

// LoadFromEnv overrides cfg from environment variables
func LoadFromEnv(cfg *Config) error {
	// Queue
	if err := envBool("IDLEQ_ENSURE_TASKS_RUN", &cfg.Queue.EnsureTasksRun); err != nil {
		return err
	}
	if err := envInt("IDLEQ_DEFAULT_MIN_TASK_TIME_MS", &cfg.Queue.DefaultMinTaskTimeMS); err != nil {
		return err
	}
	if err := envInt("IDLEQ_IDLE_BUDGET_MS", &cfg.Queue.IdleBudgetMS); err != nil {
		return err
	}

	// Page
	if err := envBool("IDLEQ_UNRELIABLE_UNLOAD", &cfg.Page.UnreliableUnload); err != nil {
		return err
	}

	// Recorder
	if err := envFloat("IDLEQ_SAMPLE_RATE", &cfg.Recorder.SampleRate); err != nil {
		return err
	}

	// Logging
	if v := os.Getenv("IDLEQ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Prometheus
	if err := envBool("IDLEQ_PROM_ENABLED", &cfg.Prometheus.Enabled); err != nil {
		return err
	}
	if err := envInt("IDLEQ_PROM_PORT", &cfg.Prometheus.Port); err != nil {
		return err
	}
	if v := os.Getenv("IDLEQ_PROM_PATH"); v != "" {
		cfg.Prometheus.Path = v
	}
	if v := os.Getenv("IDLEQ_PROM_LISTEN_ADDRESS"); v != "" {
		cfg.Prometheus.ListenAddress = v
	}

	// Elasticsearch
	if err := envBool("IDLEQ_ES_ENABLED", &cfg.Elasticsearch.Enabled); err != nil {
		return err
	}
	if v := os.Getenv("IDLEQ_ES_ENDPOINT"); v != "" {
		cfg.Elasticsearch.Endpoint = v
	}
	if v := os.Getenv("IDLEQ_ES_INDEX_PATTERN"); v != "" {
		cfg.Elasticsearch.IndexPattern = v
	}
	if v := os.Getenv("IDLEQ_ES_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("IDLEQ_ES_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("IDLEQ_ES_API_KEY"); v != "" {
		cfg.Elasticsearch.APIKey = v
	}
	if v := os.Getenv("IDLEQ_ES_FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid IDLEQ_ES_FLUSH_INTERVAL: %w", err)
		}
		cfg.Elasticsearch.FlushInterval = d
	}

	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}
