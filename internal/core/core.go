package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"
)

// shutdownTimeout bounds the Stop calls of one App.Stop.
const shutdownTimeout = 30 * time.Second

// App owns the modules loaded from one configuration and drives them
// through start, reload and stop.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*loadedModule
}

type loadedModule struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates an App whose modules are loaded through ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules configures, provisions and validates the modules in the
// given order. A failure stops what was loaded so far and leaves the App
// empty. On success the loaded IDs are published as "core.modules".
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		if a.loaded(ModuleID(id)) {
			a.unload()
			return fmt.Errorf("loading module %s: loaded twice", id)
		}
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.unload()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.modules = append(a.modules, &loadedModule{id: ModuleID(id), module: mod})
		a.logger.Info("module loaded", "module", id)
	}
	a.ctx.RegisterService("core.modules", a.ModuleIDs())
	return nil
}

func (a *App) loaded(id ModuleID) bool {
	return slices.ContainsFunc(a.modules, func(m *loadedModule) bool { return m.id == id })
}

// ModuleIDs returns the IDs of the loaded modules in load order.
func (a *App) ModuleIDs() []string {
	ids := make([]string, 0, len(a.modules))
	for _, m := range a.modules {
		ids = append(ids, string(m.id))
	}
	return ids
}

// Start calls Start on every Starter in load order. When one fails the
// modules started before it are stopped again, newest first.
func (a *App) Start() error {
	for _, m := range a.modules {
		s, ok := m.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting module", "module", string(m.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(m.id), "error", err)
			a.Stop()
			return fmt.Errorf("starting module %s: %w", m.id, err)
		}
		m.started = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops the started modules, newest first. It is safe to call more
// than once.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, m := range slices.Backward(a.modules) {
		if !m.started {
			continue
		}
		m.started = false
		s, ok := m.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(m.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(m.id), "error", err)
		}
	}
}

// unload releases a partially loaded set: every Stopper is called since
// Provision may already have acquired resources.
func (a *App) unload() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, m := range slices.Backward(a.modules) {
		if s, ok := m.module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.modules = nil
}

// ReloadModules calls Reload on every loaded module implementing Reloader,
// in load order. ctx carries the new module configurations. A failing
// module does not stop the others; all failures are returned joined.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, m := range a.modules {
		r, ok := m.module.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(m.id))
		if err := r.Reload(ctx.ForModule(m.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(m.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", m.id, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts all modules and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	a.logger.Info("shutdown requested", "cause", context.Cause(ctx))

	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
