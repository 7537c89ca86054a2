package channel

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/sbus/internal/store"
	"github.com/flemzord/sbus/pkg/message"
)

// defaultPollInterval bounds how long a waiting receiver can miss a message
// added to the group without going through Send.
const defaultPollInterval = 250 * time.Millisecond

// GroupChannel is a queue channel whose buffer is a message group in a
// store. Send adds to the group, subject to its capacity; Receive polls the
// oldest message.
type GroupChannel struct {
	name    string
	groupID string
	store   *store.SimpleMessageStore[string]

	// PollInterval is how often a blocked Receive re-checks the group.
	PollInterval time.Duration

	mu     sync.Mutex
	signal chan struct{}
}

// Compile-time interface guard.
var _ PollableChannel = (*GroupChannel)(nil)

// NewGroupChannel creates a channel named name buffering into the store
// group of the same name.
func NewGroupChannel(name string, st *store.SimpleMessageStore[string]) *GroupChannel {
	return &GroupChannel{
		name:         name,
		groupID:      name,
		store:        st,
		PollInterval: defaultPollInterval,
		signal:       make(chan struct{}),
	}
}

// Name implements Channel.
func (c *GroupChannel) Name() string { return c.name }

// GroupID returns the store group backing the channel.
func (c *GroupChannel) GroupID() string { return c.groupID }

// Send adds msg to the backing group and wakes waiting receivers.
func (c *GroupChannel) Send(ctx context.Context, msg message.Message) error {
	if _, err := c.store.AddMessageToGroup(ctx, c.groupID, msg); err != nil {
		return err
	}
	c.mu.Lock()
	close(c.signal)
	c.signal = make(chan struct{})
	c.mu.Unlock()
	return nil
}

// TryReceive implements PollableChannel.
func (c *GroupChannel) TryReceive(ctx context.Context) (message.Message, bool, error) {
	return c.store.PollMessageFromGroup(ctx, c.groupID)
}

// Receive implements PollableChannel.
func (c *GroupChannel) Receive(ctx context.Context) (message.Message, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		// Take the signal before polling so a Send in between is not missed.
		c.mu.Lock()
		signal := c.signal
		c.mu.Unlock()

		msg, ok, err := c.TryReceive(ctx)
		if err != nil {
			return message.Message{}, err
		}
		if ok {
			return msg, nil
		}

		select {
		case <-signal:
		case <-ticker.C:
		case <-ctx.Done():
			return message.Message{}, ctx.Err()
		}
	}
}
