package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flemzord/sbus/internal/security"
)

var errMessageNotFound = errors.New("message not found")

// handleAddMessage stores the message in the body in the flat message
// space, as for a claim check. Re-adding a known id is a no-op.
func (g *Gateway) handleAddMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, ok := g.decodeMessage(w, r)
		if !ok {
			return
		}
		if err := g.limiter.Allow(security.KindIngest); err != nil {
			g.fail(w, r, err)
			return
		}
		stored, err := g.store.AddMessage(r.Context(), msg)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.metrics.RecordIngested(1)
		w.Header().Set("Location", "/api/messages/"+stored.ID.String())
		g.writeMessage(w, r, http.StatusCreated, stored)
	}
}

// handleGetMessage returns a message of the flat space by id.
func (g *Gateway) handleGetMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := messageID(w, r)
		if !ok {
			return
		}
		msg, found := g.store.GetMessage(id)
		if !found {
			writeError(w, http.StatusNotFound, errMessageNotFound)
			return
		}
		g.writeMessage(w, r, http.StatusOK, msg)
	}
}

// handleDeleteMessage removes a message from the flat space and returns
// it, releasing its capacity.
func (g *Gateway) handleDeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := messageID(w, r)
		if !ok {
			return
		}
		msg, found := g.store.RemoveMessage(id)
		if !found {
			writeError(w, http.StatusNotFound, errMessageNotFound)
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventMessageDelete, MessageID: id.String()})
		g.writeMessage(w, r, http.StatusOK, msg)
	}
}

func messageID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "msgID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid message id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}
