package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/samber/lo"

	"github.com/flemzord/sbus/internal/router"
	"github.com/flemzord/sbus/internal/security"
	"github.com/flemzord/sbus/pkg/message"
)

// Headers set on messages received through webhooks.
const (
	HeaderWebhookSource = "webhook_source"
	HeaderWebhookEvent  = "webhook_event"
)

// webhookEventHeaders are request headers naming the event of a webhook
// delivery, in the order they are checked.
var webhookEventHeaders = []string{"X-Event-Type", "X-GitHub-Event", "X-Gitlab-Event"}

// sink is where ingested messages go: a store group or a router.
type sink struct {
	group  string
	router *router.MappingRouter
}

// deliver hands msg to s.
func (g *Gateway) deliver(ctx context.Context, s sink, msg message.Message) error {
	var err error
	switch {
	case s.router != nil:
		if err = s.router.Route(ctx, msg); err == nil {
			g.metrics.RecordRouted(1)
		}
	case s.group != "":
		_, err = g.store.AddMessageToGroup(ctx, s.group, msg)
	default:
		return errors.New("gateway: ingest target has neither group nor router")
	}
	if err != nil {
		return err
	}
	g.metrics.RecordIngested(1)
	return nil
}

// sinkFor resolves a group id or router name to a sink.
func (g *Gateway) sinkFor(group, routerName string) (sink, error) {
	if (group == "") == (routerName == "") {
		return sink{}, errors.New("exactly one of group or router is required")
	}
	if group != "" {
		if g.store == nil {
			return sink{}, errors.New("no message store registered")
		}
		return sink{group: group}, nil
	}
	if g.routers == nil {
		return sink{}, fmt.Errorf("router %q not found", routerName)
	}
	rt, ok := g.routers.Get(routerName)
	if !ok {
		return sink{}, fmt.Errorf("router %q not found", routerName)
	}
	return sink{router: rt}, nil
}

// ingestResult reports a batch ingest.
type ingestResult struct {
	Accepted int      `json:"accepted"`
	IDs      []string `json:"ids"`
}

// handleIngestEvents accepts CloudEvents in binary, structured or batch
// mode and delivers each one to ?group= or ?router=. Events are delivered
// in order; the first failure stops the batch and is reported with the
// count already accepted.
func (g *Gateway) handleIngestEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		target, err := g.sinkFor(q.Get("group"), q.Get("router"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
		var events []cloudevents.Event
		if cehttp.IsHTTPBatch(r.Header) {
			events, err = cehttp.NewEventsFromHTTPRequest(r)
		} else {
			var e *cloudevents.Event
			if e, err = cehttp.NewEventFromHTTPRequest(r); err == nil {
				events = []cloudevents.Event{*e}
			}
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode cloudevents: %w", err))
			return
		}

		msgs := make([]message.Message, 0, len(events))
		for i := range events {
			msg, err := message.FromCloudEvent(&events[i])
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			msgs = append(msgs, msg)
		}

		if err := g.limiter.AllowN(security.KindIngest, len(msgs)); err != nil {
			g.fail(w, r, err)
			return
		}

		res := ingestResult{IDs: []string{}}
		for _, msg := range msgs {
			if err := g.deliver(r.Context(), target, msg); err != nil {
				g.logger.Warn("gateway: event delivery failed", "event_id", msg.Headers[message.HeaderEventID], "accepted", res.Accepted, "error", err)
				writeJSON(w, statusFor(err), struct {
					ingestResult
					Error string `json:"error"`
				}{res, err.Error()})
				return
			}
			res.Accepted++
			res.IDs = append(res.IDs, msg.ID.String())
		}
		writeJSON(w, http.StatusAccepted, res)
	}
}

// webhookIngest is the WebhookHandler of a configured webhook source. It
// turns each delivery into a message: a JSON body is decoded into the
// payload, any other body is kept as bytes.
type webhookIngest struct {
	gw     *Gateway
	target sink
}

// Compile-time interface guard.
var _ WebhookHandler = (*webhookIngest)(nil)

// newWebhookIngest resolves the target of a webhook source.
func (g *Gateway) newWebhookIngest(cfg WebhookSourceCfg) (*webhookIngest, error) {
	target, err := g.sinkFor(cfg.Group, cfg.Router)
	if err != nil {
		return nil, err
	}
	return &webhookIngest{gw: g, target: target}, nil
}

// HandleWebhook implements WebhookHandler.
func (h *webhookIngest) HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error {
	if err := h.gw.limiter.Allow(security.KindIngest); err != nil {
		return err
	}

	var payload any = body
	ct := headers.Get("Content-Type")
	if strings.Contains(ct, "json") || ct == "" {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			payload = decoded
		}
	}

	hdrs := message.Headers{HeaderWebhookSource: source}
	if ct != "" {
		hdrs[message.HeaderContentType] = ct
	}
	if name, ok := lo.Find(webhookEventHeaders, func(h string) bool { return headers.Get(h) != "" }); ok {
		hdrs[HeaderWebhookEvent] = headers.Get(name)
	}
	return h.gw.deliver(ctx, h.target, message.New(payload, hdrs))
}
