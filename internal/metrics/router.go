package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/sbus/internal/router"
)

// RouterMetrics counts routing outcomes. It implements router.Observer so a
// single instance can be shared by every router.
type RouterMetrics struct {
	routed   *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// Compile-time interface guard.
var _ router.Observer = (*RouterMetrics)(nil)

// NewRouterMetrics creates unregistered router counters.
func NewRouterMetrics() *RouterMetrics {
	return &RouterMetrics{
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_routed_total",
			Help:      "Messages delivered by a router, per destination channel.",
		}, []string{"router", "channel"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "failures_total",
			Help:      "Routing failures, per router and reason.",
		}, []string{"router", "reason"}),
	}
}

// Register adds the counters to reg.
func (m *RouterMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.routed, m.failures} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Routed implements router.Observer.
func (m *RouterMetrics) Routed(name string, channels []string) {
	for _, ch := range channels {
		m.routed.WithLabelValues(name, ch).Inc()
	}
}

// Failed implements router.Observer.
func (m *RouterMetrics) Failed(name string, err error) {
	m.failures.WithLabelValues(name, failureReason(err)).Inc()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, router.ErrNoRoute):
		return "no_route"
	case errors.Is(err, router.ErrAmbiguousMapping):
		return "ambiguous"
	case errors.Is(err, router.ErrUnresolvableChannel):
		return "unresolvable"
	case errors.Is(err, router.ErrUnsupportedKey):
		return "unsupported_key"
	default:
		return "send"
	}
}
