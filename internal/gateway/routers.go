package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/sbus/internal/router"
	"github.com/flemzord/sbus/internal/security"
)

// routerJSON describes a router and its mapping table.
type routerJSON struct {
	Name     string            `json:"name"`
	Mappings map[string]string `json:"mappings"`
}

// routeJSON is the outcome of a resolve or route request.
type routeJSON struct {
	MessageID string   `json:"message_id"`
	Channels  []string `json:"channels"`
}

// handleListChannels returns the registered channel names.
func (g *Gateway) handleListChannels() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.channels.Channels())
	}
}

// handleSendToChannel sends the message in the body to a named channel.
func (g *Gateway) handleSendToChannel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		msg, ok := g.decodeMessage(w, r)
		if !ok {
			return
		}
		if err := g.limiter.Allow(security.KindIngest); err != nil {
			g.fail(w, r, err)
			return
		}
		if err := g.channels.Send(r.Context(), name, msg); err != nil {
			g.fail(w, r, err)
			return
		}
		g.metrics.RecordIngested(1)
		writeJSON(w, http.StatusAccepted, routeJSON{MessageID: msg.ID.String(), Channels: []string{name}})
	}
}

// handleListRouters returns every router with its mappings.
func (g *Gateway) handleListRouters() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := g.routers.Names()
		out := make([]routerJSON, 0, len(names))
		for _, name := range names {
			if r, ok := g.routers.Get(name); ok {
				out = append(out, routerJSON{Name: name, Mappings: r.ChannelMappings()})
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetRouter returns one router.
func (g *Gateway) handleGetRouter() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := g.lookupRouter(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, routerJSON{Name: rt.Name(), Mappings: rt.ChannelMappings()})
	}
}

// handleSetMapping maps a key to a channel. The body is {"channel": name}.
func (g *Gateway) handleSetMapping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := g.lookupRouter(w, r)
		if !ok {
			return
		}
		var body struct {
			Channel string `json:"channel"`
		}
		if err := g.decodeJSON(w, r, &body); err != nil || body.Channel == "" {
			writeError(w, http.StatusBadRequest, errors.New(`body must be {"channel": <name>}`))
			return
		}
		if err := rt.SetChannelMapping(chi.URLParam(r, "key"), body.Channel); err != nil {
			g.fail(w, r, err)
			return
		}
		g.logger.Info("gateway: router mapping set", "router", rt.Name(), "key", chi.URLParam(r, "key"), "channel", body.Channel)
		writeJSON(w, http.StatusOK, routerJSON{Name: rt.Name(), Mappings: rt.ChannelMappings()})
	}
}

// handleRemoveMapping deletes the mapping of a key.
func (g *Gateway) handleRemoveMapping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := g.lookupRouter(w, r)
		if !ok {
			return
		}
		rt.RemoveChannelMapping(chi.URLParam(r, "key"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleResolveRoute previews the channel names a message maps to without
// sending it.
func (g *Gateway) handleResolveRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := g.lookupRouter(w, r)
		if !ok {
			return
		}
		msg, ok := g.decodeMessage(w, r)
		if !ok {
			return
		}
		names, err := rt.ResolveChannelNames(r.Context(), msg)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, routeJSON{MessageID: msg.ID.String(), Channels: names})
	}
}

// handleRoute routes the message in the body.
func (g *Gateway) handleRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := g.lookupRouter(w, r)
		if !ok {
			return
		}
		msg, ok := g.decodeMessage(w, r)
		if !ok {
			return
		}
		if err := g.limiter.Allow(security.KindIngest); err != nil {
			g.fail(w, r, err)
			return
		}
		if err := g.deliver(r.Context(), sink{router: rt}, msg); err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message_id": msg.ID.String()})
	}
}

// lookupRouter looks up the router named in the path, answering 404 when it is
// unknown.
func (g *Gateway) lookupRouter(w http.ResponseWriter, r *http.Request) (*router.MappingRouter, bool) {
	name := chi.URLParam(r, "name")
	rt, ok := g.routers.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("router %q not found", name))
		return nil, false
	}
	return rt, true
}
