package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// signatureHeaders are checked in order for an HMAC-SHA256 signature of
// the form "sha256=<hex>".
var signatureHeaders = []string{"X-Signature-256", "X-Hub-Signature-256"}

var errBadSignature = errors.New("invalid signature")

// WebhookHandler consumes the verified body of one webhook delivery. A
// returned error is answered with the status its cause maps to.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// webhookSource is one registered sender.
type webhookSource struct {
	handler WebhookHandler
	secret  []byte
}

// verify checks the delivery's signature. Sources without a secret accept
// unsigned deliveries.
func (s webhookSource) verify(body []byte, h http.Header) error {
	if len(s.secret) == 0 {
		return nil
	}
	var sig string
	for _, name := range signatureHeaders {
		if sig = h.Get(name); sig != "" {
			break
		}
	}
	got, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil || !strings.HasPrefix(sig, "sha256=") {
		return errBadSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errBadSignature
	}
	return nil
}

// WebhookDispatcher serves POST /webhooks/{source}: it reads the capped
// body, verifies the source's signature and hands the body to the
// source's handler. Deliveries for unknown sources are acknowledged and
// dropped so senders do not retry forever.
type WebhookDispatcher struct {
	logger  *slog.Logger
	maxBody int64

	mu      sync.RWMutex
	sources map[string]webhookSource
}

// NewWebhookDispatcher creates a dispatcher reading at most maxBody bytes
// per delivery.
func NewWebhookDispatcher(logger *slog.Logger, maxBody int64) *WebhookDispatcher {
	return &WebhookDispatcher{
		logger:  logger,
		maxBody: maxBody,
		sources: make(map[string]webhookSource),
	}
}

// Register sets the handler and optional HMAC secret of source, replacing
// any previous registration.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources[source] = webhookSource{handler: h, secret: []byte(secret)}
}

// Sources returns the registered source names.
func (d *WebhookDispatcher) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sources))
	for name := range d.sources {
		names = append(names, name)
	}
	return names
}

func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing source"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBody))
	if err != nil {
		if code := statusFor(err); code == http.StatusRequestEntityTooLarge {
			writeError(w, code, err)
			return
		}
		writeError(w, http.StatusBadRequest, errors.New("failed to read body"))
		return
	}

	d.mu.RLock()
	src, ok := d.sources[name]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("gateway: webhook for unregistered source dropped", "source", name)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "warning": "no handler registered"})
		return
	}

	if err := src.verify(body, r.Header); err != nil {
		d.logger.Warn("gateway: webhook signature rejected", "source", name, "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	if err := src.handler.HandleWebhook(r.Context(), name, body, r.Header); err != nil {
		code := statusFor(err)
		d.logger.Error("gateway: webhook handler failed", "source", name, "status", code, "error", err)
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
