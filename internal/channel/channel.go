// Package channel defines message destinations and the registry that
// resolves channel names to them.
package channel

import (
	"context"

	"github.com/flemzord/sbus/pkg/message"
)

// Channel is a named destination messages can be sent to.
type Channel interface {
	// Name returns the name the channel is registered under.
	Name() string

	// Send delivers msg to the channel.
	Send(ctx context.Context, msg message.Message) error
}

// PollableChannel is a Channel that buffers messages for consumers to pull.
type PollableChannel interface {
	Channel

	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context) (message.Message, error)

	// TryReceive returns a buffered message without waiting.
	TryReceive(ctx context.Context) (message.Message, bool, error)
}

// Resolver maps a channel name to a destination. Implementations return an
// error wrapping ErrUnresolvable when the name is unknown.
type Resolver interface {
	ResolveDestination(name string) (Channel, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (Channel, error)

// ResolveDestination implements Resolver.
func (f ResolverFunc) ResolveDestination(name string) (Channel, error) {
	return f(name)
}
