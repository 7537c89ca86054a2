// Package message defines the immutable message envelope carried through
// channels, routers and the grouped message store.
package message

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Well-known header names.
const (
	HeaderCorrelationID  = "correlation_id"
	HeaderSequenceNumber = "sequence_number"
	HeaderSequenceSize   = "sequence_size"
	HeaderContentType    = "content_type"
	HeaderErrorChannel   = "error_channel"
)

// Headers maps header names to values. Names are unique by construction.
type Headers map[string]any

// Message is an immutable envelope: a payload plus headers, identified by
// a UUID. Two messages are the same message when their IDs are equal.
//
// Fields are exported for encoding; callers must treat a Message as
// read-only and derive modified copies with WithHeader or WithPayload.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
	Headers   Headers   `json:"headers,omitempty"`
}

// New creates a message with a fresh random ID. The headers map is copied.
func New(payload any, headers Headers) Message {
	return Message{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Headers:   maps.Clone(headers),
	}
}

// Equal reports whether m and other are the same message.
func (m Message) Equal(other Message) bool {
	return m.ID == other.ID
}

// IsZero reports whether m carries no ID.
func (m Message) IsZero() bool {
	return m.ID == uuid.Nil
}

// Header returns the value of the named header.
func (m Message) Header(name string) (any, bool) {
	v, ok := m.Headers[name]
	return v, ok
}

// CorrelationID returns the correlation header, if present and a string.
func (m Message) CorrelationID() (string, bool) {
	v, ok := m.Headers[HeaderCorrelationID].(string)
	return v, ok
}

// SequenceNumber returns the sequence header as an integer.
func (m Message) SequenceNumber() (int, bool) {
	switch v := m.Headers[HeaderSequenceNumber].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// WithHeader returns a copy of m with the header set. The ID is kept.
func (m Message) WithHeader(name string, value any) Message {
	h := make(Headers, len(m.Headers)+1)
	maps.Copy(h, m.Headers)
	h[name] = value
	m.Headers = h
	return m
}

// WithPayload returns a new message carrying payload and m's headers.
// The result has a fresh ID since it is a different message.
func (m Message) WithPayload(payload any) Message {
	return New(payload, m.Headers)
}
