// Package storemem implements the store.memory module: an in-memory grouped
// message store with group-backed channels and mapping routers, all
// declared in configuration.
package storemem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sbus/internal/channel"
	"github.com/flemzord/sbus/internal/core"
	"github.com/flemzord/sbus/internal/lock"
	"github.com/flemzord/sbus/internal/metrics"
	"github.com/flemzord/sbus/internal/router"
	"github.com/flemzord/sbus/internal/store"
)

// Service names published on the AppContext.
const (
	ServiceStore    = "store.messages"
	ServiceChannels = "store.channels"
	ServiceRouters  = "store.routers"
	ServiceTypes    = "store.types"

	// ServiceMetricsRegistry is consumed, not published: when present,
	// store and router metrics are registered on it.
	ServiceMetricsRegistry = "metrics.registry"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ core.Reloader     = (*Module)(nil)
)

// Module is the store.memory module.
type Module struct {
	config   Config
	logger   *slog.Logger
	store    *store.SimpleMessageStore[string]
	channels *channel.Registry
	routers  *router.Registry
	types    *router.TypeRegistry
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.memory",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("storemem: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	m.store = store.New(store.Options{
		IndividualCapacity: m.config.IndividualCapacity,
		GroupCapacity:      m.config.GroupCapacity,
		UpperBoundTimeout:  m.config.UpperBoundTimeout,
		CopyOnGet:          m.config.CopyOnGet,
		TimeoutOnIdle:      m.config.TimeoutOnIdle,
	}, lock.NewRegistry[string]())

	m.channels = channel.NewRegistry()
	if err := m.channels.Register(channel.NullChannel{}); err != nil {
		return err
	}
	for _, name := range m.config.Channels {
		gc := channel.NewGroupChannel(name, m.store)
		gc.PollInterval = m.config.PollInterval
		if err := m.channels.Register(gc); err != nil {
			return fmt.Errorf("storemem: channel %q: %w", name, err)
		}
	}

	m.types = router.NewTypeRegistry()
	for _, t := range m.config.Types {
		err := m.types.Register(router.TypeDescriptor{
			Name:       t.Name,
			Super:      t.Super,
			Interfaces: t.Interfaces,
			Interface:  t.Interface,
		})
		if err != nil {
			return fmt.Errorf("storemem: type %q: %w", t.Name, err)
		}
	}

	var observer router.Observer
	if reg, ok := core.ServiceAs[prometheus.Registerer](ctx, ServiceMetricsRegistry); ok {
		rm := metrics.NewRouterMetrics()
		if err := rm.Register(reg); err != nil {
			return fmt.Errorf("storemem: register router metrics: %w", err)
		}
		if err := reg.Register(metrics.NewStoreCollector("memory", m.store)); err != nil {
			return fmt.Errorf("storemem: register store metrics: %w", err)
		}
		observer = rm
	}

	m.routers = router.NewRegistry()
	for _, rc := range m.config.Routers {
		r, err := m.buildRouter(rc, observer)
		if err != nil {
			return fmt.Errorf("storemem: router %q: %w", rc.Name, err)
		}
		if err := m.routers.Register(r); err != nil {
			return err
		}
	}

	ctx.RegisterService(ServiceStore, m.store)
	ctx.RegisterService(ServiceChannels, m.channels)
	ctx.RegisterService(ServiceRouters, m.routers)
	ctx.RegisterService(ServiceTypes, m.types)

	m.logger.Info("storemem: provisioned",
		"channels", len(m.config.Channels),
		"routers", len(m.config.Routers),
		"group_capacity", m.config.GroupCapacity,
	)
	return nil
}

// buildRouter creates the router described by rc.
func (m *Module) buildRouter(rc RouterConfig, observer router.Observer) (*router.MappingRouter, error) {
	cfg := router.Config{
		Prefix:             rc.Prefix,
		Suffix:             rc.Suffix,
		ResolutionRequired: rc.ResolutionRequired,
		Resolver:           m.channels,
		IgnoreSendFailures: rc.IgnoreSendFailures,
		Mappings:           rc.Mappings,
		Observer:           observer,
	}
	if rc.DefaultOutput != "" {
		out, err := m.channels.ResolveDestination(rc.DefaultOutput)
		if err != nil {
			return nil, fmt.Errorf("default output: %w", err)
		}
		cfg.DefaultOutput = out
	}

	switch rc.Type {
	case RouterPayload:
		return router.NewPayloadTypeRouter(rc.Name, m.types, cfg)
	case RouterException:
		return router.NewExceptionTypeRouter(rc.Name, m.types, cfg)
	case RouterHeader:
		return router.NewHeaderValueRouter(rc.Name, rc.Header, cfg), nil
	default:
		return nil, fmt.Errorf("unknown router type %q", rc.Type)
	}
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Reload implements core.Reloader. The mapping tables of existing routers
// are replaced in place. Everything else the new configuration changes
// takes effect on the next start and is only reported.
func (m *Module) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(m.ModuleInfo().ID)
	if !ok {
		return nil
	}
	var next Config
	if err := node.Decode(&next); err != nil {
		return fmt.Errorf("storemem: decode config: %w", err)
	}
	next.defaults()
	if err := next.validate(); err != nil {
		return err
	}

	var errs []error
	for _, rc := range next.Routers {
		r, ok := m.routers.Get(rc.Name)
		if !ok {
			m.logger.Warn("storemem: new router ignored until restart", "router", rc.Name)
			continue
		}
		if err := r.ReplaceChannelMappings(rc.Mappings); err != nil {
			errs = append(errs, fmt.Errorf("storemem: router %q: %w", rc.Name, err))
			continue
		}
		m.logger.Info("storemem: router mappings reloaded", "router", rc.Name, "mappings", len(rc.Mappings))
	}
	if m.config.needsRestart(next) {
		m.logger.Warn("storemem: capacity, channel or type changes apply on restart")
	}
	return errors.Join(errs...)
}

// Stop implements core.Stopper. Groups still held are reported; the store
// is memory only.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	st := m.store.Stats()
	if st.Groups > 0 || st.Messages > 0 {
		m.logger.Warn("storemem: discarding buffered messages",
			"groups", st.Groups,
			"group_messages", st.GroupMessages,
			"messages", st.Messages,
		)
	}
	return nil
}

// Store returns the provisioned store.
func (m *Module) Store() *store.SimpleMessageStore[string] { return m.store }

// Channels returns the channel registry.
func (m *Module) Channels() *channel.Registry { return m.channels }

// Routers returns the router registry.
func (m *Module) Routers() *router.Registry { return m.routers }
