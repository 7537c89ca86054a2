// Package app provides the entry point shared by the sbus command and
// its service wrapper.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/sbus/internal/config"
	"github.com/flemzord/sbus/internal/core"
	"github.com/flemzord/sbus/internal/reload"
	"github.com/flemzord/sbus/internal/security"
	"github.com/flemzord/sbus/internal/telemetry"
)

// ConfigFileName is the file looked up by ResolveConfigPath.
const ConfigFileName = "sbus.yaml"

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the data_dir setting and the default data directory.
	DataDir string

	// LogOutput receives the log stream. Defaults to os.Stderr.
	LogOutput io.Writer

	// WatchInterval is how often the configuration file is polled for
	// changes. Zero means reload.DefaultPollInterval; negative disables
	// the watcher.
	WatchInterval time.Duration
}

// Run loads configuration, starts all modules, and blocks until ctx is done
// or a shutdown signal is received. SIGHUP and file-change events trigger a
// live configuration reload for modules that implement core.Reloader.
func Run(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}

	// Every log line goes through the redactor so configured secrets never
	// reach the output.
	redactor := security.NewRedactor()
	inner := slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.Level()})
	logger := slog.New(security.NewRedactingHandler(inner, redactor))

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	registry := NewMetricsRegistry()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("metrics.registry", registry)
	appCtx.RegisterService("core.version", params.Version)
	appCtx.RegisterService("config.path", cfgPath)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	handler := reload.NewHandler(application, appCtx, logger)

	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("sbus started",
		"version", params.Version,
		"config", cfgPath,
		"modules", len(application.ModuleIDs()),
	)

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// --- file watcher ---
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	var fileEvents <-chan reload.Event
	if params.WatchInterval >= 0 {
		watcher := reload.NewWatcher(cfgPath, params.WatchInterval)
		go watcher.Run(watchCtx)
		fileEvents = watcher.Events()
	}

	// --- main event loop ---
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested", "cause", context.Cause(ctx))
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case evt, ok := <-fileEvents:
			if !ok {
				fileEvents = nil
				continue
			}
			logger.Info("config file changed, reloading", "path", evt.Path)
			if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// NewMetricsRegistry returns the registry shared by all modules, with the
// Go runtime and process collectors already registered.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/sbus/sbus.yaml → ~/.config/sbus/sbus.yaml → ./sbus.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "sbus", ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "sbus", ConfigFileName))
	}

	candidates = append(candidates, ConfigFileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where init writes a new configuration when no path
// is given.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "sbus", ConfigFileName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "sbus", ConfigFileName)
	}
	return ConfigFileName
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/sbus if set, otherwise ~/.local/share/sbus.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "sbus")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sbus")
}
