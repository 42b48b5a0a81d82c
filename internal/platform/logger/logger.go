// Package logger constructs the service-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // trace|debug|info|warn|error; default info
	Environment string // "development" enables console output
	ServiceName string
	Version     string
}

// Logger wraps zerolog.Logger so call sites keep the fluent API.
type Logger struct {
	zerolog.Logger
}

// New builds a Logger with service metadata attached to every event.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	base := zerolog.New(out)
	if cfg.Environment == "development" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	l := base.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{Logger: l}
}

// Nop returns a disabled logger for tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}
