package channel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/flemzord/sbus/pkg/message"
)

// Registry holds channels by name and resolves names to destinations.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// Compile-time interface guard.
var _ Resolver = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

// Register adds ch under its own name.
// Returns ErrDuplicateChannel if the name is already taken.
func (r *Registry) Register(ch Channel) error {
	name := ch.Name()
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	r.channels[name] = ch
	return nil
}

// Unregister removes the channel registered under name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, name)
}

// Get returns the channel registered under name, or false if none.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[name]
	return ch, ok
}

// ResolveDestination implements Resolver.
func (r *Registry) ResolveDestination(name string) (Channel, error) {
	ch, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, name)
	}
	return ch, nil
}

// Send delivers msg to the channel registered under name.
func (r *Registry) Send(ctx context.Context, name string, msg message.Message) error {
	ch, err := r.ResolveDestination(name)
	if err != nil {
		return err
	}
	return ch.Send(ctx, msg)
}

// Channels returns the sorted names of all registered channels.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
