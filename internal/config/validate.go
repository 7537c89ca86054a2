package config

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/flemzord/sbus/internal/core"
)

// SupportedVersion is the only config schema version this build reads.
const SupportedVersion = "1"

// Validate reports every structural problem in cfg at once. Module sections
// are only checked for presence here; their contents are validated by the
// modules themselves when loaded.
func Validate(cfg *Config) error {
	var errs []error
	errs = append(errs, checkHeader(cfg)...)
	errs = append(errs, checkModules(cfg)...)
	errs = append(errs, validateTelemetry(cfg.Telemetry)...)
	return errors.Join(errs...)
}

func checkHeader(cfg *Config) []error {
	var errs []error
	switch cfg.Version {
	case SupportedVersion:
	case "":
		errs = append(errs, errors.New("config: version field is required"))
	default:
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: %q)", cfg.Version, SupportedVersion))
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("config: unknown log_level %q", cfg.LogLevel))
	}
	return errs
}

// checkModules requires at least one known module. A Configurable module
// whose namespace is in use must have its own section.
func checkModules(cfg *Config) []error {
	if len(cfg.Modules) == 0 {
		return []error{errors.New("config: at least one module must be configured")}
	}

	var errs []error
	namespaces := make(map[string]struct{})
	for _, id := range sortedIDs(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		namespaces[core.ModuleID(id).Namespace()] = struct{}{}
	}

	for ns := range namespaces {
		for _, info := range core.GetModulesByNamespace(ns) {
			if _, configurable := info.New().(core.Configurable); !configurable {
				continue
			}
			if _, ok := cfg.Modules[string(info.ID)]; !ok {
				errs = append(errs, fmt.Errorf("config: module %q requires configuration but has no entry", info.ID))
			}
		}
	}
	return errs
}

func sortedIDs(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func validateTelemetry(t *TelemetryConfig) []error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required"))
	} else if _, _, err := net.SplitHostPort(t.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("config: telemetry.endpoint: %w", err))
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio %v out of range [0, 1]", t.SampleRatio))
	}
	return errs
}
