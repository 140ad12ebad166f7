// internal/logging/logging.go

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type passed around the module.
type Logger = logiface.Logger[logiface.Event]

// Config mirrors the logging section of the config file
type Config struct {
	Level     string `yaml:"level"`      // info (by default)
	TimeField string `yaml:"time_field"` // time (by default), empty disables it
}

// DefaultConfig returns the logging defaults.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		TimeField: "time",
	}
}

// ParseLevel accepts the syslog keywords logiface prints, plus a few
// common aliases.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "informational":
		return logiface.LevelInformational, nil
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "off", "disabled", "none":
		return logiface.LevelDisabled, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New builds a JSON lines logger writing to w (stderr if nil).
func New(w io.Writer, cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(cfg.TimeField),
		),
		stumpy.L.WithLevel(level),
	).Logger(), nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(io.Discard)),
		stumpy.L.WithLevel(logiface.LevelDisabled),
	).Logger()
}
