package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/sbus/internal/config"
	"github.com/flemzord/sbus/internal/core"
)

// Reloadable is the part of core.App the handler drives.
type Reloadable interface {
	ModuleIDs() []string
	ReloadModules(ctx *core.AppContext) error
}

// Handler re-reads the configuration file and hands the new module
// configurations to the running modules.
type Handler struct {
	app    Reloadable
	appCtx *core.AppContext
	logger *slog.Logger
}

// NewHandler creates a reload handler. appCtx is the context the modules
// were loaded with; reloads share its services.
func NewHandler(app Reloadable, appCtx *core.AppContext, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = appCtx.Logger
	}
	return &Handler{
		app:    app,
		appCtx: appCtx,
		logger: logger.With("component", "reload"),
	}
}

// HandleReload loads and validates the configuration at path, then applies
// it. An invalid file leaves the running modules untouched.
func (h *Handler) HandleReload(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.Apply(ctx, cfg)
}

// Apply hands an already validated configuration to the modules. The set
// of loaded modules is fixed at start: added or removed module entries are
// reported and otherwise ignored.
func (h *Handler) Apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload cancelled: %w", err)
	}

	loaded := make(map[string]bool)
	for _, id := range h.app.ModuleIDs() {
		loaded[id] = true
		if _, ok := cfg.Modules[id]; !ok {
			h.logger.Warn("module removed from config, still running until restart", "module", id)
		}
	}
	for id := range cfg.Modules {
		if !loaded[id] {
			h.logger.Warn("module added to config, not loaded until restart", "module", id)
		}
	}

	if err := h.app.ReloadModules(h.appCtx.WithModuleConfigs(cfg.Modules)); err != nil {
		return err
	}
	h.logger.Info("configuration reloaded")
	return nil
}
