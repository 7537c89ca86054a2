package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/flemzord/sbus/internal/core"
	"github.com/flemzord/sbus/internal/reaper"
	"github.com/flemzord/sbus/internal/security"
	"github.com/flemzord/sbus/internal/store"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime      time.Duration   `json:"uptime_seconds"`
	Metrics     MetricsSnapshot `json:"metrics"`
	Store       *store.Stats    `json:"store,omitempty"`
	Channels    []string        `json:"channels"`
	Routers     []string        `json:"routers"`
	ReaperJobs  []string        `json:"reaper_jobs"`
	Modules     []string        `json:"modules"`
	AuthEnabled bool            `json:"auth_enabled"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:      time.Since(g.startedAt).Truncate(time.Second),
			Metrics:     g.metrics.Snapshot(),
			Channels:    []string{},
			Routers:     []string{},
			ReaperJobs:  []string{},
			Modules:     g.modules,
			AuthEnabled: g.config.Auth.IsConfigured(),
		}
		if g.store != nil {
			st := g.store.Stats()
			resp.Store = &st
		}
		if g.channels != nil {
			resp.Channels = g.channels.Channels()
		}
		if g.routers != nil {
			resp.Routers = g.routers.Names()
		}
		if g.scheduler != nil {
			resp.ReaperJobs = g.scheduler.Jobs()
		}
		if resp.Modules == nil {
			resp.Modules = []string{}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Loaded    bool   `json:"loaded"`
}

// handleListModules lists every compiled module and whether it is loaded.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		loaded := make(map[string]bool, len(g.modules))
		for _, id := range g.modules {
			loaded[id] = true
		}
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
				Loaded:    loaded[string(m.ID)],
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// reaperRunJSON reports the jobs run by POST /api/reaper/run.
type reaperRunJSON struct {
	Ran    []string          `json:"ran"`
	Failed map[string]string `json:"failed,omitempty"`
}

// handleRunReaper runs every reaper job now, or only ?job= when given.
// A job already running is reported as failed with 409 semantics in its
// message but does not fail the request.
func (g *Gateway) handleRunReaper() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := g.scheduler.Jobs()
		if name := r.URL.Query().Get("job"); name != "" {
			jobs = []string{name}
		}

		resp := reaperRunJSON{Ran: []string{}}
		for _, name := range jobs {
			err := g.scheduler.RunNow(r.Context(), name)
			switch {
			case errors.Is(err, reaper.ErrUnknownJob):
				writeError(w, http.StatusNotFound, err)
				return
			case err != nil:
				if resp.Failed == nil {
					resp.Failed = make(map[string]string)
				}
				resp.Failed[name] = err.Error()
			default:
				resp.Ran = append(resp.Ran, name)
			}
		}
		g.audit.Log(security.AuditEvent{
			Type:   security.EventReaperRun,
			Detail: r.URL.Query().Get("job"),
		})
		writeJSON(w, http.StatusOK, resp)
	}
}
