package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext is what a module sees of the running process: its logger, the
// data directory, its configuration section and the service registry
// shared by all modules.
type AppContext struct {
	// Logger for the current module scope.
	Logger *slog.Logger

	// DataDir is the root directory for module data (dumps, exports).
	DataDir string

	parentLogger  *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *services
}

// services is shared by an AppContext and every context derived from it.
type services struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewAppContext creates the root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:       logger,
		DataDir:      dataDir,
		parentLogger: logger,
		services:     &services{m: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy carrying configs (module ID to raw YAML
// section). The copy shares the service registry.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ModuleConfig returns the raw configuration of module id, if any.
func (ctx *AppContext) ModuleConfig(id ModuleID) (*yaml.Node, bool) {
	node, ok := ctx.moduleConfigs[string(id)]
	if !ok {
		return nil, false
	}
	return &node, true
}

// ForModule returns the context handed to module id: same services and
// configs, logger tagged with module=id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	return &AppContext{
		Logger:        ctx.parentLogger.With("module", string(id)),
		DataDir:       ctx.DataDir,
		parentLogger:  ctx.parentLogger,
		moduleConfigs: ctx.moduleConfigs,
		services:      ctx.services,
	}
}

// RegisterService publishes svc under name for other modules. A later
// registration under the same name replaces the earlier one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.m[name] = svc
}

// Service returns the service registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.m[name]
	return svc, ok
}

// ServiceAs returns the service registered under name if it has type T.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, false
	}
	v, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// LoadModule builds a fresh instance of module id and takes it through
// Configure (only when the context holds a section for it), Provision and
// Validate. The first failing step aborts the load.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()

	steps := []struct {
		name string
		run  func() error
	}{
		{"configuring", func() error {
			c, ok := mod.(Configurable)
			node, has := ctx.ModuleConfig(info.ID)
			if !ok || !has {
				return nil
			}
			return c.Configure(node)
		}},
		{"provisioning", func() error {
			if p, ok := mod.(Provisioner); ok {
				return p.Provision(ctx.ForModule(info.ID))
			}
			return nil
		}},
		{"validating", func() error {
			if v, ok := mod.(Validator); ok {
				return v.Validate()
			}
			return nil
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("%s module %s: %w", step.name, id, err)
		}
	}
	return mod, nil
}
