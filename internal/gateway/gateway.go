// Package gateway provides the HTTP surface of the bus: an admin API over
// the message store, channels and routers, CloudEvents and webhook ingest,
// websocket group consumers, Prometheus metrics and the MCP inspector. It
// binds to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sbus/internal/channel"
	"github.com/flemzord/sbus/internal/core"
	"github.com/flemzord/sbus/internal/inspect"
	"github.com/flemzord/sbus/internal/metrics"
	"github.com/flemzord/sbus/internal/reaper"
	"github.com/flemzord/sbus/internal/router"
	"github.com/flemzord/sbus/internal/security"
	"github.com/flemzord/sbus/internal/store"
)

// Services the gateway consumes. All of them are optional.
const (
	serviceStore    = "store.messages"
	serviceChannels = "store.channels"
	serviceRouters  = "store.routers"
	serviceMetrics  = "metrics.registry"
	serviceRedactor = "security.redactor"
	serviceModules  = "core.modules"
	serviceVersion  = "core.version"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config      Config
	appCtx      *core.AppContext
	logger      *slog.Logger
	server      *http.Server
	metrics     *Metrics
	httpMetrics *metrics.HTTPMetrics
	dispatcher  *WebhookDispatcher
	limiter     *security.RateLimiter
	audit       *security.AuditLogger
	startedAt   time.Time

	// cancel ends the base context of every request, which websocket
	// streams outlive Shutdown on.
	cancel context.CancelFunc

	// Resolved lazily at Start() via service registry.
	store     *store.SimpleMessageStore[string]
	channels  *channel.Registry
	routers   *router.Registry
	scheduler *reaper.Scheduler
	gatherer  prometheus.Gatherer
	inspector *inspect.Inspector
	modules   []string
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = &Metrics{}
	g.dispatcher = NewWebhookDispatcher(g.logger, g.config.MaxBodyBytes)
	g.limiter = security.NewRateLimiter(*g.config.RateLimit)

	redactor, _ := core.ServiceAs[*security.Redactor](ctx, serviceRedactor)
	if redactor != nil {
		redactor.AddLiteral(g.config.Auth.BearerToken)
		redactor.AddLiteral(g.config.Auth.BasicPass)
		for _, wh := range g.config.Webhooks {
			redactor.AddLiteral(wh.Secret)
		}
	}
	g.audit = security.NewAuditLogger(security.AuditLoggerConfig{
		Logger:   g.logger.With("component", "audit"),
		Redactor: redactor,
	})

	if reg, ok := core.ServiceAs[prometheus.Registerer](ctx, serviceMetrics); ok {
		hm := metrics.NewHTTPMetrics()
		if err := hm.Register(reg); err != nil {
			return fmt.Errorf("gateway: register http metrics: %w", err)
		}
		g.httpMetrics = hm
	}

	ctx.RegisterService("gateway.metrics", g.metrics)
	ctx.RegisterService("gateway.webhook_dispatcher", g.dispatcher)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolveServices(); err != nil {
		return err
	}
	g.startedAt = time.Now()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		g.logger.Info("gateway: listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve error", "error", err)
		}
	}()
	return nil
}

// resolveServices binds the optional services registered by other
// modules. Missing services disable the routes that need them.
func (g *Gateway) resolveServices() error {
	g.store, _ = core.ServiceAs[*store.SimpleMessageStore[string]](g.appCtx, serviceStore)
	g.channels, _ = core.ServiceAs[*channel.Registry](g.appCtx, serviceChannels)
	g.routers, _ = core.ServiceAs[*router.Registry](g.appCtx, serviceRouters)
	g.scheduler, _ = core.ServiceAs[*reaper.Scheduler](g.appCtx, reaper.SchedulerService)
	g.gatherer, _ = core.ServiceAs[prometheus.Gatherer](g.appCtx, serviceMetrics)
	g.modules, _ = core.ServiceAs[[]string](g.appCtx, serviceModules)

	if g.store == nil {
		g.logger.Warn("gateway: no message store registered, store routes disabled")
	} else {
		version, ok := core.ServiceAs[string](g.appCtx, serviceVersion)
		if !ok {
			version = "dev"
		}
		g.inspector = inspect.New(g.store, g.routers, version)
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured, admin API disabled")
	}

	for source, wh := range g.config.Webhooks {
		h, err := g.newWebhookIngest(wh)
		if err != nil {
			return fmt.Errorf("gateway: webhook %q: %w", source, err)
		}
		g.dispatcher.Register(source, h, wh.Secret)
		g.logger.Info("gateway: webhook source configured", "source", source)
	}
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down")
	err := g.server.Shutdown(shutdownCtx)
	g.cancel()
	return err
}
