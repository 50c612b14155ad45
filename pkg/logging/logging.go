// Package logging provides the slog-based logging setup shared by every
// engine in the simulator (manager, TCP/UDP engines, MQTT broker/proxy,
// admin API).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is a log level, aliasing slog.Level so callers don't need to import
// log/slog directly.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format is the log output format.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration.
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	AddSource bool

	// LokiURL, if non-empty, fans every record out to a Loki push endpoint
	// in addition to Output.
	LokiURL string
}

// DefaultConfig returns the simulator's default logging configuration:
// info level, text format, stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// New builds a *slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	if cfg.LokiURL != "" {
		handler = Multi(handler, NewLokiHandler(cfg.LokiURL, WithLokiLevel(cfg.Level)))
	}

	return slog.New(handler)
}

// Nop returns a logger that discards everything. Components given a nil
// logger fall back to slog.Default, not to Nop.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel parses a level string (case-insensitive); unrecognized values
// fall back to info, matching the tolerant parsing the rest of the simulator
// uses for operator-supplied config.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat parses a format string; unrecognized values fall back to text.
func ParseFormat(s string) Format {
	if s == "json" || s == "JSON" {
		return FormatJSON
	}
	return FormatText
}

// FromEnv builds a Config from SIMULATORD_LOG_LEVEL / SIMULATORD_LOG_FORMAT,
// mirroring the RUST_LOG-equivalent env knob called out in spec §6.4.
func FromEnv(getenv func(string) string) Config {
	cfg := DefaultConfig()
	if v := getenv("SIMULATORD_LOG_LEVEL"); v != "" {
		cfg.Level = ParseLevel(v)
	}
	if v := getenv("SIMULATORD_LOG_FORMAT"); v != "" {
		cfg.Format = ParseFormat(v)
	}
	if v := getenv("SIMULATORD_LOKI_URL"); v != "" {
		cfg.LokiURL = v
	}
	return cfg
}
