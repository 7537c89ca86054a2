// Package metrics exposes sbus internals to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/sbus/internal/store"
)

const namespace = "sbus"

// StatsSource is anything reporting store occupancy.
type StatsSource interface {
	Stats() store.Stats
}

var (
	descMessages = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "messages"),
		"Number of messages in the flat message space.",
		[]string{"store"}, nil,
	)
	descIndividualAvailable = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "individual_capacity_available"),
		"Free slots in the flat message space; -1 when unbounded.",
		[]string{"store"}, nil,
	)
	descGroups = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "groups"),
		"Number of message groups.",
		[]string{"store", "state"}, nil,
	)
	descGroupMessages = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "group_messages"),
		"Total number of messages across all groups.",
		[]string{"store"}, nil,
	)
)

type storeCollector struct {
	name string
	src  StatsSource
}

// Compile-time interface guard.
var _ prometheus.Collector = (*storeCollector)(nil)

// NewStoreCollector returns a collector reading src on every scrape.
func NewStoreCollector(name string, src StatsSource) prometheus.Collector {
	return &storeCollector{name: name, src: src}
}

// Describe implements prometheus.Collector.
func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descMessages
	ch <- descIndividualAvailable
	ch <- descGroups
	ch <- descGroupMessages
}

// Collect implements prometheus.Collector.
func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(descMessages, prometheus.GaugeValue, float64(st.Messages), c.name)
	ch <- prometheus.MustNewConstMetric(descIndividualAvailable, prometheus.GaugeValue, float64(st.IndividualAvailable), c.name)
	ch <- prometheus.MustNewConstMetric(descGroups, prometheus.GaugeValue, float64(st.CompleteGroups), c.name, "complete")
	ch <- prometheus.MustNewConstMetric(descGroups, prometheus.GaugeValue, float64(st.Groups-st.CompleteGroups), c.name, "open")
	ch <- prometheus.MustNewConstMetric(descGroupMessages, prometheus.GaugeValue, float64(st.GroupMessages), c.name)
}
