package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExpire_RemovesOldGroupsWithoutCallbacks(t *testing.T) {
	t.Parallel()

	s, ft := newTestStore(Options{GroupCapacity: 2})
	ctx := context.Background()

	s.AddMessageToGroup(ctx, "old", msg(1))
	ft.Advance(10 * time.Minute)
	s.AddMessageToGroup(ctx, "fresh", msg(2))

	n, err := s.ExpireMessageGroups(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("ExpireMessageGroups: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if _, err := s.GroupMetadata("old"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("old group should be removed, err = %v", err)
	}
	if _, err := s.GroupMetadata("fresh"); err != nil {
		t.Errorf("fresh group should remain: %v", err)
	}
}

func TestExpire_TimeoutOnIdle(t *testing.T) {
	t.Parallel()

	s, ft := newTestStore(Options{TimeoutOnIdle: true})
	ctx := context.Background()

	s.AddMessageToGroup(ctx, "busy", msg(1))
	ft.Advance(10 * time.Minute)
	// A recent modification keeps an old group alive.
	s.AddMessageToGroup(ctx, "busy", msg(2))

	n, err := s.ExpireMessageGroups(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("ExpireMessageGroups: %v", err)
	}
	if n != 0 {
		t.Errorf("expired = %d, want 0", n)
	}

	ft.Advance(6 * time.Minute)
	if n, _ := s.ExpireMessageGroups(ctx, 5*time.Minute); n != 1 {
		t.Errorf("expired = %d, want 1 once idle", n)
	}
}

func TestExpire_CallbacksRunAndErrorsJoin(t *testing.T) {
	t.Parallel()

	s, ft := newTestStore(Options{})
	ctx := context.Background()

	s.AddMessageToGroup(ctx, "a", msg(1))
	s.AddMessageToGroup(ctx, "b", msg(2))
	ft.Advance(time.Hour)

	var seen []string
	boom := errors.New("boom")
	s.RegisterExpiryCallback(func(ctx context.Context, st *SimpleMessageStore[string], g *MessageGroup[string]) error {
		seen = append(seen, g.GroupID())
		if g.GroupID() == "a" {
			return boom
		}
		return st.RemoveMessageGroup(ctx, g.GroupID())
	})

	n, err := s.ExpireMessageGroups(ctx, time.Minute)
	if n != 2 {
		t.Errorf("expired = %d, want 2", n)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom in chain", err)
	}
	if len(seen) != 2 {
		t.Errorf("callback ran %d times, want 2", len(seen))
	}
	// The callback decides what happens to the group.
	if _, err := s.GroupMetadata("a"); err != nil {
		t.Errorf("group a should remain after failing callback: %v", err)
	}
	if _, err := s.GroupMetadata("b"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("group b should be removed by its callback, err = %v", err)
	}
}

func TestExpire_CancelledContext(t *testing.T) {
	t.Parallel()

	s, ft := newTestStore(Options{})
	s.AddMessageToGroup(context.Background(), "a", msg(1))
	ft.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := s.ExpireMessageGroups(ctx, time.Minute)
	if n != 0 {
		t.Errorf("expired = %d, want 0", n)
	}
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("err = %v, want ErrInterrupted", err)
	}
}

func TestExpire_GroupRemovedConcurrentlyIsNotCounted(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(Options{})
	ctx := context.Background()
	s.AddMessageToGroup(ctx, "a", msg(1))

	// Another caller removes the group between the sweep's snapshot and
	// its removal.
	e := s.entry("a")
	if err := s.RemoveMessageGroup(ctx, "a"); err != nil {
		t.Fatalf("RemoveMessageGroup: %v", err)
	}

	expired, err := s.expireEntry(ctx, e, nil)
	if expired || err != nil {
		t.Errorf("expireEntry = (%v, %v), want (false, nil)", expired, err)
	}
}
