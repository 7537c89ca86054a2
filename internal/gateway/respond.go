package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/flemzord/sbus/internal/channel"
	"github.com/flemzord/sbus/internal/router"
	"github.com/flemzord/sbus/internal/security"
	"github.com/flemzord/sbus/internal/store"
	"github.com/flemzord/sbus/pkg/message"
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err with the given status code.
func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// statusFor maps store, channel and router errors onto HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrCapacityExhausted), errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrGroupNotFound), errors.Is(err, channel.ErrUnresolvable):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInterrupted):
		return http.StatusServiceUnavailable
	case errors.Is(err, router.ErrNoRoute),
		errors.Is(err, router.ErrAmbiguousMapping),
		errors.Is(err, router.ErrUnresolvableChannel),
		errors.Is(err, router.ErrUnsupportedKey),
		errors.Is(err, router.ErrUnknownType):
		return http.StatusUnprocessableEntity
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status and counts server-side errors.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		g.metrics.RecordError()
		g.logger.Error("gateway: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err)
}

// messageRequest is the JSON form of a message submitted to the API. An ID
// may be supplied to make retries idempotent.
type messageRequest struct {
	ID      string          `json:"id,omitempty"`
	Payload any             `json:"payload"`
	Headers message.Headers `json:"headers,omitempty"`
}

func (m messageRequest) toMessage() (message.Message, error) {
	msg := message.New(m.Payload, m.Headers)
	if m.ID != "" {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			return message.Message{}, fmt.Errorf("invalid message id %q: %w", m.ID, err)
		}
		msg.ID = id
	}
	return msg, nil
}

// decodeJSON reads a size-limited JSON body into v.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeMessage reads one message from the request body.
func (g *Gateway) decodeMessage(w http.ResponseWriter, r *http.Request) (message.Message, bool) {
	var req messageRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadRequest
		}
		writeError(w, code, fmt.Errorf("decode message: %w", err))
		return message.Message{}, false
	}
	msg, err := req.toMessage()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return message.Message{}, false
	}
	msg.Payload = normalizeNumbers(msg.Payload)
	for k, v := range msg.Headers {
		msg.Headers[k] = normalizeNumbers(v)
	}
	return msg, true
}

// normalizeNumbers turns json.Number values into int64 when integral and
// float64 otherwise, so routers see native numeric kinds.
func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNumbers(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeNumbers(e)
		}
		return v
	default:
		return v
	}
}

// wantsCloudEvent reports whether the client asked for structured
// CloudEvents, by Accept header or ?format=cloudevents.
func wantsCloudEvent(r *http.Request) bool {
	if r.URL.Query().Get("format") == "cloudevents" {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == cloudevents.ApplicationCloudEventsJSON {
			return true
		}
	}
	return false
}

// writeMessage writes msg as JSON or as a structured CloudEvent.
func (g *Gateway) writeMessage(w http.ResponseWriter, r *http.Request, code int, msg message.Message) {
	if !wantsCloudEvent(r) {
		writeJSON(w, code, msg)
		return
	}
	e, err := message.ToCloudEvent(msg, g.config.EventSource)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", cloudevents.ApplicationCloudEventsJSON)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(e)
}
