package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent attribute headers set by FromCloudEvent.
const (
	HeaderEventID      = "ce_id"
	HeaderEventType    = "ce_type"
	HeaderEventSource  = "ce_source"
	HeaderEventSubject = "ce_subject"
)

// DefaultEventType is used by ToCloudEvent when no ce_type header is set.
const DefaultEventType = "io.sbus.message"

// FromCloudEvent converts a CloudEvent into a Message. The event ID becomes
// the message ID when it is a UUID; otherwise a fresh ID is generated and the
// original kept in the ce_id header. JSON data is decoded into the payload;
// other content types keep the raw bytes.
func FromCloudEvent(e *cloudevents.Event) (Message, error) {
	if e == nil {
		return Message{}, errors.New("message: nil cloudevent")
	}
	if err := e.Validate(); err != nil {
		return Message{}, fmt.Errorf("message: invalid cloudevent: %w", err)
	}

	headers := Headers{
		HeaderEventID:     e.ID(),
		HeaderEventType:   e.Type(),
		HeaderEventSource: e.Source(),
	}
	if s := e.Subject(); s != "" {
		headers[HeaderEventSubject] = s
	}
	if ct := e.DataContentType(); ct != "" {
		headers[HeaderContentType] = ct
	}
	for k, v := range e.Extensions() {
		headers[k] = v
	}

	var payload any
	if data := e.Data(); len(data) > 0 {
		ct := e.DataContentType()
		err := json.Unmarshal(data, &payload)
		switch {
		case err == nil && isJSON(ct):
		case ct != "" && isJSON(ct):
			return Message{}, fmt.Errorf("message: decode cloudevent data: %w", err)
		default:
			payload = append([]byte(nil), data...)
		}
	}

	msg := New(payload, headers)
	if id, err := uuid.Parse(e.ID()); err == nil {
		msg.ID = id
	}
	if t := e.Time(); !t.IsZero() {
		msg.Timestamp = t.UTC()
	}
	return msg, nil
}

// ToCloudEvent converts m into a CloudEvent. source is used when m has no
// ce_source header.
func ToCloudEvent(m Message, source string) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(m.ID.String())
	e.SetTime(m.Timestamp)

	e.SetSource(source)
	if s, ok := m.Headers[HeaderEventSource].(string); ok && s != "" {
		e.SetSource(s)
	}
	e.SetType(DefaultEventType)
	if s, ok := m.Headers[HeaderEventType].(string); ok && s != "" {
		e.SetType(s)
	}
	if s, ok := m.Headers[HeaderEventSubject].(string); ok && s != "" {
		e.SetSubject(s)
	}

	for k, v := range m.Headers {
		if ext, ok := extensionName(k); ok {
			e.SetExtension(ext, fmt.Sprint(v))
		}
	}

	if m.Payload != nil {
		var err error
		switch p := m.Payload.(type) {
		case []byte:
			ct, _ := m.Headers[HeaderContentType].(string)
			if ct == "" {
				ct = "application/octet-stream"
			}
			err = e.SetData(ct, p)
		default:
			err = e.SetData(cloudevents.ApplicationJSON, p)
		}
		if err != nil {
			return cloudevents.Event{}, fmt.Errorf("message: encode cloudevent data: %w", err)
		}
	}

	if err := e.Validate(); err != nil {
		return cloudevents.Event{}, fmt.Errorf("message: invalid cloudevent: %w", err)
	}
	return e, nil
}

// extensionName maps a header name onto a valid CloudEvents extension name
// (lowercase alphanumerics), skipping the attribute headers.
func extensionName(header string) (string, bool) {
	switch header {
	case HeaderEventID, HeaderEventType, HeaderEventSource, HeaderEventSubject, HeaderContentType:
		return "", false
	}
	var b strings.Builder
	for _, r := range strings.ToLower(header) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func isJSON(contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.TrimSpace(ct)
	return ct == "" || ct == cloudevents.ApplicationJSON || strings.HasSuffix(ct, "+json")
}
