// Package capacity provides counting admission gates with bounded-wait
// acquisition, used by the message store to cap how many messages it holds.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrInterrupted indicates a caller's context was cancelled while it was
// waiting for a slot. The context error is wrapped alongside it.
var ErrInterrupted = errors.New("capacity: interrupted")

// Gate is a counting semaphore with a fixed limit. A limit of zero or less
// makes the gate unbounded: every acquisition succeeds immediately.
//
// Release is clamped: the number of available slots never exceeds the
// limit, no matter how many slots callers hand back.
type Gate struct {
	limit int64
	sem   *semaphore.Weighted // nil when unbounded

	mu   sync.Mutex
	held int64
}

// New creates a gate admitting at most limit concurrent holders.
func New(limit int) *Gate {
	g := &Gate{limit: int64(limit)}
	if limit > 0 {
		g.sem = semaphore.NewWeighted(int64(limit))
	}
	return g
}

// TryAcquire takes one slot.
//
// timeout < 0 waits until a slot frees or ctx is done; timeout == 0 never
// waits; timeout > 0 waits at most that long. A timeout yields
// (false, nil). Cancellation of ctx yields (false, err) where err wraps
// both ErrInterrupted and ctx.Err().
func (g *Gate) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if g.sem == nil {
		return true, nil
	}

	switch {
	case timeout == 0:
		if !g.sem.TryAcquire(1) {
			return false, nil
		}
	case timeout < 0:
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return false, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
	default:
		if g.sem.TryAcquire(1) {
			break
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		err := g.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
			}
			return false, nil
		}
	}

	g.mu.Lock()
	g.held++
	g.mu.Unlock()
	return true, nil
}

// Release hands back up to n slots. Slots that were never taken are
// ignored, so over-release cannot raise availability above the limit.
func (g *Gate) Release(n int) {
	if g.sem == nil || n <= 0 {
		return
	}

	g.mu.Lock()
	k := min(int64(n), g.held)
	g.held -= k
	g.mu.Unlock()

	if k > 0 {
		g.sem.Release(k)
	}
}

// Limit returns the configured limit. Zero or less means unbounded.
func (g *Gate) Limit() int {
	return int(g.limit)
}

// Unbounded reports whether the gate admits without limit.
func (g *Gate) Unbounded() bool {
	return g.sem == nil
}

// Available returns the number of free slots, or -1 for an unbounded gate.
// The value is a snapshot and may be stale by the time it is read.
func (g *Gate) Available() int {
	if g.sem == nil {
		return -1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.limit - g.held)
}

