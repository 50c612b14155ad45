// Package config reads the simulator's process-level environment
// configuration (admin HTTP port, log level, data directory). Per spec.md
// this is a thin collaborator — config values are plain structs read once at
// startup, not a layered configuration system.
package config

import (
	"os"
	"strconv"
)

// Config holds the simulator's process-wide settings.
type Config struct {
	// Port is the admin HTTP port. Defaults to 3030 per spec §6.4.
	Port int

	// DataDir is the working directory holding simulators.json,
	// templates.json and the logs/simulator/ debug log tree.
	DataDir string

	// LogLevel mirrors the RUST_LOG-equivalent env knob from spec §6.4.
	LogLevel string

	// LogFormat selects text or json log output.
	LogFormat string

	// LokiURL, if set, is a Loki push endpoint
	// (e.g. "http://localhost:3100/loki/api/v1/push") that logs are
	// additionally forwarded to alongside the primary stderr/file sink.
	LokiURL string
}

// FromEnv builds a Config from the process environment, applying the
// defaults spec.md §6.4 specifies.
func FromEnv() Config {
	cfg := Config{
		Port:      3030,
		DataDir:   ".",
		LogLevel:  "info",
		LogFormat: "text",
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if v := os.Getenv("SIMULATORD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SIMULATORD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SIMULATORD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SIMULATORD_LOKI_URL"); v != "" {
		cfg.LokiURL = v
	}

	return cfg
}
