package sched

import "time"

// Config mirrors the queue section of the config file
type Config struct {
	EnsureTasksRun       bool `yaml:"ensure_tasks_run"`         // false (by default)
	DefaultMinTaskTimeMS int  `yaml:"default_min_task_time_ms"` // 0 (by default)
	IdleBudgetMS         int  `yaml:"idle_budget_ms"`           // 50 (by default)
}

// DefaultConfig is used for anything the config file leaves out
func DefaultConfig() Config {
	return Config{
		EnsureTasksRun:       false,
		DefaultMinTaskTimeMS: 0,
		IdleBudgetMS:         int(DefaultIdleBudget / time.Millisecond),
	}
}

// Sanitize applies the sanity clamps
func (c Config) Sanitize() Config {
	if c.DefaultMinTaskTimeMS < 0 {
		c.DefaultMinTaskTimeMS = 0
	}
	if c.IdleBudgetMS <= 0 {
		c.IdleBudgetMS = int(DefaultIdleBudget / time.Millisecond)
	}
	return c
}

// DefaultMinTaskTime is the per-task reservation as a duration.
func (c Config) DefaultMinTaskTime() time.Duration {
	return time.Duration(c.DefaultMinTaskTimeMS) * time.Millisecond
}

// IdleBudget is the synthetic idle period length as a duration.
func (c Config) IdleBudget() time.Duration {
	return time.Duration(c.IdleBudgetMS) * time.Millisecond
}
