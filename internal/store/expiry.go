package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExpiryCallback is invoked for each group found expired by
// ExpireMessageGroups. Callbacks usually release the group's messages
// downstream and then remove the group.
type ExpiryCallback[K comparable] func(ctx context.Context, s *SimpleMessageStore[K], group *MessageGroup[K]) error

// RegisterExpiryCallback adds a callback run on every expired group.
// When no callback is registered expired groups are simply removed.
func (s *SimpleMessageStore[K]) RegisterExpiryCallback(cb ExpiryCallback[K]) {
	s.expiryMu.Lock()
	defer s.expiryMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// ExpireMessageGroups expires every group older than timeout, measured from
// creation, or from the last modification when TimeoutOnIdle is set.
// Without callbacks a group counts as expired once this sweep removed it;
// with callbacks every group handed to them counts. Callback failures do
// not stop the sweep; they are joined into the returned error.
func (s *SimpleMessageStore[K]) ExpireMessageGroups(ctx context.Context, timeout time.Duration) (int, error) {
	ctx, span := s.tracer.Start(ctx, "store.expire_groups",
		trace.WithAttributes(attribute.String("store.timeout", timeout.String())))

	threshold := s.now().Add(-timeout)

	s.expiryMu.RLock()
	callbacks := append([]ExpiryCallback[K](nil), s.callbacks...)
	s.expiryMu.RUnlock()

	var (
		count int
		errs  []error
	)
	for _, e := range s.liveEntries() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, interrupted(err))
			break
		}

		ref := e.group.Timestamp()
		if s.opts.TimeoutOnIdle {
			ref = e.group.LastModified()
		}
		if !ref.Before(threshold) {
			continue
		}

		expired, err := s.expireEntry(ctx, e, callbacks)
		if expired {
			count++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	span.SetAttributes(attribute.Int("store.expired", count))
	endSpan(span, err)
	return count, err
}

// expireEntry hands e to the callbacks, or removes it when there are none.
// A group already removed by someone else is not reported as expired.
func (s *SimpleMessageStore[K]) expireEntry(ctx context.Context, e *groupEntry[K], callbacks []ExpiryCallback[K]) (bool, error) {
	groupID := e.group.GroupID()
	if len(callbacks) == 0 {
		err := s.RemoveMessageGroup(ctx, groupID)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrGroupNotFound):
			return false, nil
		default:
			return false, err
		}
	}

	var errs []error
	for _, cb := range callbacks {
		if err := cb(ctx, s, e.group); err != nil {
			errs = append(errs, fmt.Errorf("store: expire group %v: %w", groupID, err))
		}
	}
	return true, errors.Join(errs...)
}

func (s *SimpleMessageStore[K]) liveEntries() []*groupEntry[K] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*groupEntry[K], 0, len(s.groups))
	for _, e := range s.groups {
		out = append(out, e)
	}
	return out
}
