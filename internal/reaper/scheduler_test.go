package reaper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// funcJob adapts a function to Job and counts its runs.
type funcJob struct {
	name, spec string
	fn         func(ctx context.Context) error
	runs       atomic.Int32
}

func (j *funcJob) Name() string     { return j.name }
func (j *funcJob) Schedule() string { return j.spec }

func (j *funcJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func quietScheduler() *Scheduler {
	return NewScheduler(slog.New(slog.DiscardHandler))
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec string
		ok   bool
	}{
		{"*/5 * * * *", true},
		{"0 3 * * 1-5", true},
		{"@every 30s", true},
		{"@hourly", true},
		{"", false},
		{"invalid", false},
		{"60 * * * *", false},
		{"* * * * * *", false},
	}
	for _, tt := range tests {
		if err := ValidateSchedule(tt.spec); (err == nil) != tt.ok {
			t.Errorf("ValidateSchedule(%q) = %v, want ok=%v", tt.spec, err, tt.ok)
		}
	}
}

func TestScheduler_Registration(t *testing.T) {
	t.Parallel()

	s := quietScheduler()
	for _, name := range []string{"expire", "compact"} {
		if err := s.RegisterJob(&funcJob{name: name, spec: "@hourly"}); err != nil {
			t.Fatalf("RegisterJob(%s): %v", name, err)
		}
	}
	if err := s.RegisterJob(&funcJob{name: "expire", spec: "@daily"}); err == nil {
		t.Error("RegisterJob accepted a duplicate name")
	}
	got := s.Jobs()
	if strings.Join(got, ",") != "expire,compact" {
		t.Errorf("Jobs() = %v, want [expire compact]", got)
	}
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := quietScheduler()
	_ = s.RegisterJob(&funcJob{name: "good", spec: "@hourly"})
	_ = s.RegisterJob(&funcJob{name: "bad", spec: "whenever"})

	err := s.Start()
	if err == nil || !strings.Contains(err.Error(), `"bad"`) {
		t.Fatalf("Start = %v, want error naming bad", err)
	}
	// Nothing was started, so there is nothing to stop.
	if err := s.Stop(t.Context()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 1)
	job := &funcJob{name: "tick", spec: "@every 1s", fn: func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}}
	s := quietScheduler()
	_ = s.RegisterJob(job)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire within 3s")
	}
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	job := &funcJob{name: "long", spec: "@every 1s", fn: func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	s := quietScheduler()
	_ = s.RegisterJob(job)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := job.runs.Load(); n < 1 {
		t.Errorf("runs = %d, want at least 1", n)
	}
}

func TestScheduler_StopTwice(t *testing.T) {
	t.Parallel()

	s := quietScheduler()
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := range 2 {
		if err := s.Stop(t.Context()); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ok := &funcJob{name: "ok", spec: "@hourly"}
	failing := &funcJob{name: "failing", spec: "@hourly", fn: func(context.Context) error { return boom }}
	s := quietScheduler()
	_ = s.RegisterJob(ok)
	_ = s.RegisterJob(failing)

	if err := s.RunNow(t.Context(), "ok"); err != nil {
		t.Errorf("RunNow(ok) = %v, want nil", err)
	}
	if err := s.RunNow(t.Context(), "failing"); !errors.Is(err, boom) {
		t.Errorf("RunNow(failing) = %v, want boom", err)
	}
	if err := s.RunNow(t.Context(), "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("RunNow(nope) = %v, want ErrUnknownJob", err)
	}
	if ok.runs.Load() != 1 || failing.runs.Load() != 1 {
		t.Errorf("runs = %d/%d, want 1/1", ok.runs.Load(), failing.runs.Load())
	}
}

func TestScheduler_RunNowWhileRunning(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	job := &funcJob{name: "slow", spec: "@hourly", fn: func(context.Context) error {
		close(entered)
		<-release
		return nil
	}}
	s := quietScheduler()
	_ = s.RegisterJob(job)

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-entered

	for range 5 {
		if err := s.RunNow(t.Context(), "slow"); !errors.Is(err, ErrJobRunning) {
			t.Errorf("concurrent RunNow = %v, want ErrJobRunning", err)
		}
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first RunNow: %v", err)
	}
	if n := job.runs.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestScheduler_TickLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewScheduler(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	busy := &entry{job: &funcJob{name: "busy"}}
	busy.busy.Lock()
	s.tick(t.Context(), busy)
	busy.busy.Unlock()

	s.tick(t.Context(), &entry{job: &funcJob{name: "broken", fn: func(context.Context) error {
		return errors.New("disk full")
	}}})

	out := buf.String()
	for _, want := range []string{"skipping tick", "job=busy", "job failed", "disk full"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestScheduler_NilLogger(t *testing.T) {
	t.Parallel()

	if s := NewScheduler(nil); s.logger == nil {
		t.Fatal("NewScheduler(nil) left logger nil")
	}
}
