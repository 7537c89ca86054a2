package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/flemzord/sbus/internal/security"
	"github.com/flemzord/sbus/internal/store"
	"github.com/flemzord/sbus/pkg/message"
)

// groupJSON is a group summary, with its oldest messages when requested.
type groupJSON struct {
	store.GroupMetadata[string]
	Available *int              `json:"available,omitempty"`
	Messages  []message.Message `json:"messages,omitempty"`
}

// handleStats returns store occupancy.
func (g *Gateway) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.store.Stats())
	}
}

// handleListGroups lists group summaries ordered by id. ?complete=true or
// false filters on completion.
func (g *Gateway) handleListGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups := lo.Map(g.store.Groups(), func(mg *store.MessageGroup[string], _ int) groupJSON {
			return groupJSON{GroupMetadata: mg.Metadata()}
		})
		if raw := r.URL.Query().Get("complete"); raw != "" {
			want, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid complete filter %q", raw))
				return
			}
			groups = lo.Filter(groups, func(gj groupJSON, _ int) bool { return gj.Complete == want })
		}
		slices.SortFunc(groups, func(a, b groupJSON) int { return strings.Compare(a.GroupID, b.GroupID) })
		writeJSON(w, http.StatusOK, groups)
	}
}

// handleGetGroup returns one group with up to ?limit messages (default all).
// An unknown group is returned empty, as the store does.
func (g *Gateway) handleGetGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := -1
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
				return
			}
			limit = n
		}

		mg, err := g.store.GetMessageGroup(r.Context(), id)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		msgs := mg.Messages()
		if limit >= 0 && len(msgs) > limit {
			msgs = msgs[:limit]
		}
		out := groupJSON{GroupMetadata: mg.Metadata(), Messages: msgs}
		if avail, err := g.store.GroupAvailable(id); err == nil {
			out.Available = &avail
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleDeleteGroup removes a group and releases its capacity.
func (g *Gateway) handleDeleteGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.store.RemoveMessageGroup(r.Context(), id); err != nil {
			g.fail(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventGroupDelete, GroupID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleCompleteGroup marks a group complete.
func (g *Gateway) handleCompleteGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.store.CompleteGroup(r.Context(), id); err != nil {
			g.fail(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventGroupComplete, GroupID: id})
		g.writeMetadata(w, r, id)
	}
}

// handleClearGroup empties a group without removing it.
func (g *Gateway) handleClearGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.store.ClearMessageGroup(r.Context(), id); err != nil {
			g.fail(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{Type: security.EventGroupClear, GroupID: id})
		g.writeMetadata(w, r, id)
	}
}

// handleSetLastReleased records the last released sequence number of a
// group. The body is {"sequence": n}.
func (g *Gateway) handleSetLastReleased() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var body struct {
			Sequence *int `json:"sequence"`
		}
		if err := g.decodeJSON(w, r, &body); err != nil || body.Sequence == nil {
			writeError(w, http.StatusBadRequest, errors.New(`body must be {"sequence": <int>}`))
			return
		}
		if err := g.store.SetLastReleasedSequenceNumberForGroup(r.Context(), id, *body.Sequence); err != nil {
			g.fail(w, r, err)
			return
		}
		g.writeMetadata(w, r, id)
	}
}

// handleAddToGroup adds the message in the body to a group. The group is
// created on first add.
func (g *Gateway) handleAddToGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		msg, ok := g.decodeMessage(w, r)
		if !ok {
			return
		}
		if err := g.limiter.Allow(security.KindIngest); err != nil {
			g.fail(w, r, err)
			return
		}
		mg, err := g.store.AddMessageToGroup(r.Context(), id, msg)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.metrics.RecordIngested(1)
		writeJSON(w, http.StatusCreated, groupJSON{GroupMetadata: mg.Metadata()})
	}
}

// handleRemoveFromGroup removes one message from a group by id.
func (g *Gateway) handleRemoveFromGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		msgID, err := uuid.Parse(chi.URLParam(r, "msgID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid message id: %w", err))
			return
		}
		mg, err := g.store.RemoveMessageFromGroup(r.Context(), id, message.Message{ID: msgID})
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, groupJSON{GroupMetadata: mg.Metadata()})
	}
}

// handlePollGroup removes and returns the oldest message of a group, or
// answers 204 when the group is empty.
func (g *Gateway) handlePollGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, ok, err := g.store.PollMessageFromGroup(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, r, err)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		g.metrics.RecordPolled(1)
		g.writeMessage(w, r, http.StatusOK, msg)
	}
}

func (g *Gateway) writeMetadata(w http.ResponseWriter, r *http.Request, id string) {
	md, err := g.store.GroupMetadata(id)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupJSON{GroupMetadata: md})
}
