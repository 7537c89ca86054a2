// Package security holds the gateway's protective plumbing: sliding window
// rate limits, the admin audit trail and secret redaction for logs.
package security

import (
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrRateLimited is returned when a window has no room left.
var ErrRateLimited = errors.New("security: rate limit exceeded")

// Bucket kinds used by the gateway.
const (
	KindAuth   = "auth"
	KindIngest = "ingest"
)

// RateLimitConfig holds per-minute limits. Zero disables a bucket.
type RateLimitConfig struct {
	AuthPerMin   int `yaml:"auth_per_min"`
	IngestPerMin int `yaml:"ingest_per_min"`
}

// DefaultRateLimits returns the limits used when none are configured.
func DefaultRateLimits() RateLimitConfig {
	return RateLimitConfig{
		AuthPerMin:   120,
		IngestPerMin: 6000,
	}
}

// RateLimiter counts events per kind over a sliding one-minute window.
// Kinds without a positive limit, and kinds it has never heard of, pass.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// window holds the timestamps, oldest first, of the events admitted within
// span.
type window struct {
	span  time.Duration
	limit int
	hits  []time.Time
}

// admit records n hits at now if they fit under the limit.
func (w *window) admit(now time.Time, n int) bool {
	cutoff := now.Add(-w.span)
	expired, _ := slices.BinarySearchFunc(w.hits, cutoff, func(t, c time.Time) int { return t.Compare(c) })
	w.hits = w.hits[expired:]
	if len(w.hits)+n > w.limit {
		return false
	}
	for range n {
		w.hits = append(w.hits, now)
	}
	return true
}

// NewRateLimiter returns a limiter enforcing cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{now: time.Now, windows: make(map[string]*window)}
	for kind, limit := range map[string]int{
		KindAuth:   cfg.AuthPerMin,
		KindIngest: cfg.IngestPerMin,
	} {
		if limit > 0 {
			rl.windows[kind] = &window{span: time.Minute, limit: limit}
		}
	}
	return rl
}

// Allow admits one event of kind or returns ErrRateLimited.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// AllowN admits n events of kind at once, as for an ingested batch. A batch
// that does not fit is rejected whole and leaves no trace.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[kind]
	if !ok || w.admit(rl.now(), n) {
		return nil
	}
	return ErrRateLimited
}
