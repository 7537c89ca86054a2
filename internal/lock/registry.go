// Package lock provides a registry of interruptible mutual-exclusion locks
// keyed by an arbitrary comparable value.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInterrupted indicates the caller's context was done before the lock
// could be taken. The context error is wrapped alongside it.
var ErrInterrupted = errors.New("lock: interrupted")

// Registry hands out one lock per key. Obtaining the same key twice yields
// locks guarding the same critical section; different keys never contend.
//
// A global mutex protects the lane map and is held only long enough to look
// up or create a lane. Lanes are reference counted and removed once nobody
// holds or waits on them, so the map only grows with active keys.
//
// Locks are not reentrant: a goroutine that locks a key it already holds
// blocks until its context is done.
type Registry[K comparable] struct {
	mu    sync.Mutex
	lanes map[K]*lane
}

// lane is a one-slot channel: a send takes the lock, a receive frees it.
// refs counts goroutines holding or waiting on the lane.
type lane struct {
	ch   chan struct{}
	refs int
}

// NewRegistry creates a ready-to-use Registry.
func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{lanes: make(map[K]*lane)}
}

// Obtain returns the lock for key. The value is cheap and may be copied;
// every copy for the same key refers to the same lane.
func (r *Registry[K]) Obtain(key K) Lock[K] {
	return Lock[K]{registry: r, key: key}
}

// Acquire locks key, waiting until it is free or ctx is done.
// On success the caller must call Release with the same key.
func (r *Registry[K]) Acquire(ctx context.Context, key K) error {
	ln := r.ref(key)

	select {
	case ln.ch <- struct{}{}:
		return nil
	default:
	}

	select {
	case ln.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		r.unref(key, ln)
		return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
}

// TryAcquire locks key only if it is free right now.
func (r *Registry[K]) TryAcquire(key K) bool {
	ln := r.ref(key)
	select {
	case ln.ch <- struct{}{}:
		return true
	default:
		r.unref(key, ln)
		return false
	}
}

// Release unlocks key. Releasing a key that is not held is a no-op.
func (r *Registry[K]) Release(key K) {
	r.mu.Lock()
	ln, ok := r.lanes[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-ln.ch:
	default:
		return
	}
	r.unref(key, ln)
}

// Len returns the number of keys currently held or awaited.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lanes)
}

func (r *Registry[K]) ref(key K) *lane {
	r.mu.Lock()
	defer r.mu.Unlock()

	ln, ok := r.lanes[key]
	if !ok {
		ln = &lane{ch: make(chan struct{}, 1)}
		r.lanes[key] = ln
	}
	ln.refs++
	return ln
}

func (r *Registry[K]) unref(key K, ln *lane) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ln.refs--
	if ln.refs == 0 && r.lanes[key] == ln {
		delete(r.lanes, key)
	}
}

// Lock is a handle on one key of a Registry.
type Lock[K comparable] struct {
	registry *Registry[K]
	key      K
}

// Lock takes the lock, waiting until it is free or ctx is done.
func (l Lock[K]) Lock(ctx context.Context) error {
	return l.registry.Acquire(ctx, l.key)
}

// TryLock takes the lock only if it is free right now.
func (l Lock[K]) TryLock() bool {
	return l.registry.TryAcquire(l.key)
}

// Unlock frees the lock.
func (l Lock[K]) Unlock() {
	l.registry.Release(l.key)
}
