// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for sbus.
package config

import (
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level,omitempty"`

	// DataDir is where modules write dumps and exports.
	DataDir string `yaml:"data_dir,omitempty"`

	// Telemetry configures trace export. Tracing is disabled when nil.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.memory").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure,omitempty"`

	// ServiceName defaults to "sbus".
	ServiceName string `yaml:"service_name,omitempty"`

	// SampleRatio is the fraction of root spans sampled, in [0, 1].
	// Zero means 1.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// Level returns the slog level for LogLevel. Unknown values map to info;
// Validate reports them.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, true
	case "debug":
		return slog.LevelDebug, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
