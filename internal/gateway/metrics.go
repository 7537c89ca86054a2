package gateway

import "sync/atomic"

// Metrics tracks gateway-level counters using atomic operations for
// lock-free concurrency. Prometheus carries the per-route view; these feed
// /status.
type Metrics struct {
	ingested atomic.Int64
	routed   atomic.Int64
	polled   atomic.Int64
	errors   atomic.Int64
	streams  atomic.Int64
}

// RecordIngested counts messages accepted into the bus.
func (m *Metrics) RecordIngested(n int) {
	m.ingested.Add(int64(n))
}

// RecordRouted counts messages routed by a router.
func (m *Metrics) RecordRouted(n int) {
	m.routed.Add(int64(n))
}

// RecordPolled counts messages handed to consumers.
func (m *Metrics) RecordPolled(n int) {
	m.polled.Add(int64(n))
}

// RecordError records a request that failed on the server side.
func (m *Metrics) RecordError() {
	m.errors.Add(1)
}

// StreamOpened and StreamClosed track connected websocket consumers.
func (m *Metrics) StreamOpened() { m.streams.Add(1) }

// StreamClosed is the counterpart of StreamOpened.
func (m *Metrics) StreamClosed() { m.streams.Add(-1) }

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Ingested: m.ingested.Load(),
		Routed:   m.routed.Load(),
		Polled:   m.polled.Load(),
		Errors:   m.errors.Load(),
		Streams:  m.streams.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Ingested int64 `json:"ingested"`
	Routed   int64 `json:"routed"`
	Polled   int64 `json:"polled"`
	Errors   int64 `json:"errors"`
	Streams  int64 `json:"streams"`
}
