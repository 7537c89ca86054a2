package channel

import (
	"context"
	"slices"
	"sync"

	"github.com/flemzord/sbus/pkg/message"
)

// MockChannel is a test double that records sent messages.
type MockChannel struct {
	name string

	mu   sync.Mutex
	sent []message.Message

	// SendFunc, if set, is called instead of the default recording behavior.
	SendFunc func(ctx context.Context, msg message.Message) error
}

// Compile-time interface guard.
var _ Channel = (*MockChannel)(nil)

// NewMockChannel creates a MockChannel with the given name.
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

// Name implements Channel.
func (m *MockChannel) Name() string { return m.name }

// Send records msg. If SendFunc is set, it delegates to it.
func (m *MockChannel) Send(ctx context.Context, msg message.Message) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockChannel) Sent() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}
