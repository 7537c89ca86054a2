package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

var (
	// ErrJobRunning is returned by RunNow while the job is executing.
	ErrJobRunning = errors.New("reaper: job already running")
	// ErrUnknownJob is returned by RunNow for a name nobody registered.
	ErrUnknownJob = errors.New("reaper: unknown job")
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a schedule the Scheduler accepts.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("reaper: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// entry is a registered job plus the mutex that keeps it from overlapping
// with itself.
type entry struct {
	job  Job
	busy sync.Mutex
}

// tryRun runs the job unless it is already running.
func (e *entry) tryRun(ctx context.Context) (ran bool, err error) {
	if !e.busy.TryLock() {
		return false, nil
	}
	defer e.busy.Unlock()
	return true, e.job.Run(ctx)
}

// Scheduler fires registered jobs on their cron schedules. A tick that
// finds the previous run of the same job still going is skipped.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// NewScheduler returns an idle scheduler. A nil logger means slog.Default.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, byName: make(map[string]*entry)}
}

// RegisterJob adds j. Jobs registered after Start wait for the next Start.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byName[j.Name()]; dup {
		return fmt.Errorf("reaper: duplicate job name %q", j.Name())
	}
	e := &entry{job: j}
	s.entries = append(s.entries, e)
	s.byName[j.Name()] = e
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.job.Name()
	}
	return names
}

// Start schedules every registered job. Nothing is scheduled if any job
// has an invalid schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger{s.logger}))
	for _, e := range s.entries {
		if _, err := c.AddFunc(e.job.Schedule(), func() { s.tick(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("reaper: invalid schedule for job %q: %w", e.job.Name(), err)
		}
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("reaper: scheduler started", "jobs", len(s.entries))
	return nil
}

func (s *Scheduler) tick(ctx context.Context, e *entry) {
	name := e.job.Name()
	ran, err := e.tryRun(ctx)
	switch {
	case !ran:
		s.logger.Warn("reaper: job still running, skipping tick", "job", name)
	case err != nil:
		s.logger.Error("reaper: job failed", "job", name, "error", err)
	default:
		s.logger.Debug("reaper: job completed", "job", name)
	}
}

// RunNow executes the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	ran, err := e.tryRun(ctx)
	if !ran {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	return err
}

// Stop cancels running jobs and waits for them to return, or for ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		s.logger.Info("reaper: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reaper: waiting for running jobs: %w", ctx.Err())
	}
}

// cronLogger routes robfig/cron's own diagnostics (recovered panics,
// schedule errors) into slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug("reaper: cron "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("reaper: cron "+msg, append(kv, "error", err)...)
}
