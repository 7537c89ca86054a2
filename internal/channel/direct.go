package channel

import (
	"context"

	"github.com/flemzord/sbus/pkg/message"
)

// HandlerFunc consumes a message synchronously.
type HandlerFunc func(ctx context.Context, msg message.Message) error

// DirectChannel hands each message to its handler on the sender's goroutine.
type DirectChannel struct {
	name    string
	handler HandlerFunc
}

// Compile-time interface guard.
var _ Channel = (*DirectChannel)(nil)

// NewDirectChannel creates a channel invoking handler for every message.
func NewDirectChannel(name string, handler HandlerFunc) *DirectChannel {
	return &DirectChannel{name: name, handler: handler}
}

// Name implements Channel.
func (c *DirectChannel) Name() string { return c.name }

// Send implements Channel.
func (c *DirectChannel) Send(ctx context.Context, msg message.Message) error {
	return c.handler(ctx, msg)
}

// NullChannel discards everything sent to it.
type NullChannel struct{}

// Compile-time interface guard.
var _ Channel = NullChannel{}

// NullChannelName is the name NullChannel registers under.
const NullChannelName = "nullChannel"

// Name implements Channel.
func (NullChannel) Name() string { return NullChannelName }

// Send implements Channel.
func (NullChannel) Send(context.Context, message.Message) error { return nil }
