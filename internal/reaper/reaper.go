// Package reaper expires stale message groups on a cron schedule.
package reaper

import "context"

// Job is one unit of scheduled work.
type Job interface {
	// Name identifies the job in logs. The scheduler refuses two jobs
	// with the same name.
	Name() string

	// Schedule is a standard cron expression ("*/5 * * * *") or a robfig
	// descriptor ("@every 30s", "@hourly").
	Schedule() string

	// Run performs one pass. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}
