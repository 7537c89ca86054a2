package capacity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_ImmediateAcquire(t *testing.T) {
	t.Parallel()

	g := New(2)
	for i := range 2 {
		ok, err := g.TryAcquire(context.Background(), 0)
		if err != nil {
			t.Fatalf("TryAcquire #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("TryAcquire #%d = false, want true", i)
		}
	}

	ok, err := g.TryAcquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if ok {
		t.Error("third TryAcquire should fail on a gate of 2")
	}
	if got := g.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
}

func TestGate_Unbounded(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{0, -1} {
		g := New(limit)
		for range 1000 {
			ok, err := g.TryAcquire(context.Background(), 0)
			if err != nil || !ok {
				t.Fatalf("limit %d: TryAcquire = (%v, %v), want (true, nil)", limit, ok, err)
			}
		}
		if !g.Unbounded() {
			t.Errorf("limit %d: Unbounded() = false", limit)
		}
		if got := g.Available(); got != -1 {
			t.Errorf("limit %d: Available() = %d, want -1", limit, got)
		}
		g.Release(5)
	}
}

func TestGate_BoundedWaitTimesOut(t *testing.T) {
	t.Parallel()

	g := New(1)
	if ok, _ := g.TryAcquire(context.Background(), 0); !ok {
		t.Fatal("first acquire should succeed")
	}

	start := time.Now()
	ok, err := g.TryAcquire(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if ok {
		t.Fatal("acquire on a full gate should time out")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, want >= 20ms", elapsed)
	}
}

func TestGate_BoundedWaitWakesOnRelease(t *testing.T) {
	t.Parallel()

	g := New(1)
	if ok, _ := g.TryAcquire(context.Background(), 0); !ok {
		t.Fatal("first acquire should succeed")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Release(1)
	}()

	ok, err := g.TryAcquire(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !ok {
		t.Error("waiter should be admitted after release")
	}
}

func TestGate_IndefiniteWaitInterrupted(t *testing.T) {
	t.Parallel()

	g := New(1)
	if ok, _ := g.TryAcquire(context.Background(), 0); !ok {
		t.Fatal("first acquire should succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.TryAcquire(ctx, -1)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("err = %v, want ErrInterrupted", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled in chain", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not interrupted")
	}
}

func TestGate_BoundedWaitInterrupted(t *testing.T) {
	t.Parallel()

	g := New(1)
	if ok, _ := g.TryAcquire(context.Background(), 0); !ok {
		t.Fatal("first acquire should succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := g.TryAcquire(ctx, time.Minute)
	if ok {
		t.Fatal("acquire should not succeed on a full gate")
	}
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("err = %v, want ErrInterrupted", err)
	}
}

func TestGate_ReleaseClamped(t *testing.T) {
	t.Parallel()

	g := New(3)
	g.TryAcquire(context.Background(), 0)

	g.Release(10)
	if got := g.Available(); got != 3 {
		t.Errorf("Available() after over-release = %d, want 3", got)
	}

	// Releasing an untouched gate is a no-op.
	g.Release(1)
	if got := g.Available(); got != 3 {
		t.Errorf("Available() = %d, want 3", got)
	}

	// Capacity is still exactly 3.
	for i := range 3 {
		if ok, _ := g.TryAcquire(context.Background(), 0); !ok {
			t.Fatalf("acquire #%d should succeed", i)
		}
	}
	if ok, _ := g.TryAcquire(context.Background(), 0); ok {
		t.Error("fourth acquire should fail")
	}
}

func TestGate_NeverExceedsLimit(t *testing.T) {
	t.Parallel()

	const limit = 4
	g := New(limit)

	var inside atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.TryAcquire(context.Background(), -1)
			if err != nil || !ok {
				t.Errorf("TryAcquire = (%v, %v)", ok, err)
				return
			}
			cur := inside.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			g.Release(1)
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > limit {
		t.Errorf("peak holders = %d, want <= %d", p, limit)
	}
	if got := g.Available(); got != limit {
		t.Errorf("Available() = %d, want %d", got, limit)
	}
}
