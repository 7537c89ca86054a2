package reaper

import (
	"context"
	"log/slog"
	"time"
)

// Expirer is the part of the message store the expiry job needs.
type Expirer interface {
	ExpireMessageGroups(ctx context.Context, timeout time.Duration) (int, error)
}

// DefaultSchedule is used when an ExpiryJob has no schedule.
const DefaultSchedule = "@every 1m"

// ExpiryJob expires message groups older than Timeout.
type ExpiryJob struct {
	Store        Expirer
	Timeout      time.Duration
	Logger       *slog.Logger
	StoreName    string // empty = "default"
	ScheduleExpr string // empty = DefaultSchedule
}

// Compile-time interface check.
var _ Job = (*ExpiryJob)(nil)

// Name implements Job.
func (j *ExpiryJob) Name() string {
	if j.StoreName != "" {
		return "group_expiry:" + j.StoreName
	}
	return "group_expiry"
}

// Schedule implements Job.
func (j *ExpiryJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultSchedule
}

// Run expires stale groups. Partial failures are returned after the sweep.
func (j *ExpiryJob) Run(ctx context.Context) error {
	n, err := j.Store.ExpireMessageGroups(ctx, j.Timeout)
	if n > 0 && j.Logger != nil {
		j.Logger.Info("reaper: expired message groups", "count", n, "store", j.StoreName)
	}
	return err
}
