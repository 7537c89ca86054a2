package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/flemzord/sbus/internal/channel"
	"github.com/flemzord/sbus/pkg/message"
)

// groupConsumer returns the pollable channel draining group id: the
// registered channel of that name when it is pollable, otherwise a
// transient group channel over the store.
func (g *Gateway) groupConsumer(id string) channel.PollableChannel {
	if g.channels != nil {
		if ch, ok := g.channels.Get(id); ok {
			if pc, ok := ch.(channel.PollableChannel); ok {
				return pc
			}
		}
	}
	gc := channel.NewGroupChannel(id, g.store)
	gc.PollInterval = g.config.StreamPollInterval
	return gc
}

// handleGroupStream upgrades to a websocket and pushes every message polled
// from the group until the client goes away or the gateway stops. Delivery
// is at most once: a message polled while the connection breaks is lost.
// ?format=cloudevents sends structured CloudEvents instead of messages.
func (g *Gateway) handleGroupStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		asEvents := wantsCloudEvent(r)

		// Server timeouts would otherwise carry over to the hijacked conn.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("gateway: websocket accept failed", "group", id, "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		g.metrics.StreamOpened()
		defer g.metrics.StreamClosed()
		g.logger.Info("gateway: stream opened", "group", id, "remote_addr", r.RemoteAddr)

		// Clients never send; CloseRead handles control frames and cancels
		// ctx once the peer closes.
		ctx := conn.CloseRead(r.Context())
		consumer := g.groupConsumer(id)

		for {
			msg, err := consumer.Receive(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					g.logger.Warn("gateway: stream receive failed", "group", id, "error", err)
				}
				break
			}
			g.metrics.RecordPolled(1)
			if err := g.push(ctx, conn, msg, asEvents); err != nil {
				g.logger.Warn("gateway: stream write failed", "group", id, "message_id", msg.ID, "error", err)
				break
			}
		}

		g.logger.Info("gateway: stream closed", "group", id)
		_ = conn.Close(websocket.StatusGoingAway, "stream closed")
	}
}

func (g *Gateway) push(ctx context.Context, conn *websocket.Conn, msg message.Message, asEvent bool) error {
	if !asEvent {
		return wsjson.Write(ctx, conn, msg)
	}
	e, err := message.ToCloudEvent(msg, g.config.EventSource)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, conn, e)
}
