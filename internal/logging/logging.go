// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger output
type Config struct {
	Level  string `json:"level"`  // trace, debug, info, warn, error
	Format string `json:"format"` // json or console
}

// DefaultConfig returns sensible logging defaults
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// New builds the root logger. Components derive their own with
// logger.With().Str("component", ...).Logger().
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}
