package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if g.httpMetrics != nil {
		r.Use(g.instrument)
	}

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	// Webhooks: own HMAC auth per source.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// Admin endpoints: auth required. Not mounted if no auth configured.
	if !g.config.Auth.IsConfigured() {
		return r
	}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
		r.Get("/status", g.handleStatus())
		r.Get("/api/modules", g.handleListModules())

		if g.scheduler != nil {
			r.Post("/api/reaper/run", g.handleRunReaper())
		}
		if g.store == nil {
			return
		}

		r.Handle("/mcp", g.inspector.Handler())
		r.Get("/ws/groups/{id}", g.handleGroupStream())

		r.Route("/api", func(r chi.Router) {
			r.Get("/stats", g.handleStats())

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", g.handleListGroups())
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", g.handleGetGroup())
					r.Delete("/", g.handleDeleteGroup())
					r.Post("/complete", g.handleCompleteGroup())
					r.Post("/clear", g.handleClearGroup())
					r.Post("/poll", g.handlePollGroup())
					r.Put("/last-released", g.handleSetLastReleased())
					r.Post("/messages", g.handleAddToGroup())
					r.Delete("/messages/{msgID}", g.handleRemoveFromGroup())
				})
			})

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", g.handleAddMessage())
				r.Get("/{msgID}", g.handleGetMessage())
				r.Delete("/{msgID}", g.handleDeleteMessage())
			})

			r.Post("/events", g.handleIngestEvents())

			if g.channels != nil {
				r.Get("/channels", g.handleListChannels())
				r.Post("/channels/{name}/send", g.handleSendToChannel())
			}

			if g.routers != nil {
				r.Route("/routers", func(r chi.Router) {
					r.Get("/", g.handleListRouters())
					r.Route("/{name}", func(r chi.Router) {
						r.Get("/", g.handleGetRouter())
						r.Put("/mappings/{key}", g.handleSetMapping())
						r.Delete("/mappings/{key}", g.handleRemoveMapping())
						r.Post("/resolve", g.handleResolveRoute())
						r.Post("/route", g.handleRoute())
					})
				})
			}
		})
	})

	return r
}

// instrument records request metrics under the matched route pattern.
func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		g.httpMetrics.Observe(r.Method, route, code, time.Since(start))
	})
}
