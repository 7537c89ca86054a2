package security

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// EventType names what an audit event records.
type EventType string

// Audit event types for operator actions against the bus.
const (
	EventAuthFailure   EventType = "auth_failure"
	EventRateLimit     EventType = "rate_limit"
	EventGroupComplete EventType = "group_complete"
	EventGroupClear    EventType = "group_clear"
	EventGroupDelete   EventType = "group_delete"
	EventMessageDelete EventType = "message_delete"
	EventReaperRun     EventType = "reaper_run"
)

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	GroupID   string            `json:"group_id,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// attrs renders the event as slog attributes. Metadata keys are emitted in
// sorted order after the fixed fields.
func (e AuditEvent) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 4+len(e.Metadata))
	attrs = append(attrs, slog.String("event", string(e.Type)))
	for _, f := range [...]struct{ key, val string }{
		{"group_id", e.GroupID},
		{"message_id", e.MessageID},
		{"detail", e.Detail},
	} {
		if f.val != "" {
			attrs = append(attrs, slog.String(f.key, f.val))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(e.Metadata)) {
		attrs = append(attrs, slog.String(k, e.Metadata[k]))
	}
	return attrs
}

// AuditLoggerConfig wires an AuditLogger. Every field is optional.
type AuditLoggerConfig struct {
	// Logger receives one Info record per event.
	Logger *slog.Logger
	// Redactor scrubs Detail and Metadata values before delivery.
	Redactor *Redactor
	// OnEvent observes every event after redaction.
	OnEvent func(AuditEvent)
	// Now stamps events; time.Now when nil.
	Now func() time.Time
}

// AuditLogger records operator actions and security rejections. A nil
// *AuditLogger discards everything.
type AuditLogger struct {
	cfg AuditLoggerConfig
	mu  sync.Mutex
}

// NewAuditLogger returns an AuditLogger for cfg.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuditLogger{cfg: cfg}
}

// Log stamps, redacts and delivers event. The caller's Metadata map is
// left untouched.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.cfg.Now()
	event.Metadata = maps.Clone(event.Metadata)
	if r := l.cfg.Redactor; r != nil {
		event.Detail = r.Redact(event.Detail)
		for k := range event.Metadata {
			event.Metadata[k] = r.Redact(event.Metadata[k])
		}
	}

	// Serialized so OnEvent observers see events one at a time.
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
	if l.cfg.Logger != nil {
		l.cfg.Logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", event.attrs()...)
	}
}
