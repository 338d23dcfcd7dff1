// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cohort

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juju/metafed/core/event"
)

const (
	metricsNamespace = "metafed"
	metricsSubsystem = "cohort"
)

// Collector reports cohort exchange health to prometheus. A nil
// Collector records nothing.
type Collector struct {
	processed *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	refcopies *prometheus.CounterVec
	refreshes prometheus.Counter
	members   prometheus.Gauge
}

// NewCollector returns a Collector ready for registration.
func NewCollector() *Collector {
	return &Collector{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "events_processed_total",
			Help:      "Inbound cohort events processed to completion.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "events_dropped_total",
			Help:      "Inbound cohort events dropped, by reason.",
		}, []string{"type", "reason"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "conflicts_reported_total",
			Help:      "Conflicts this member reported to the cohort.",
		}, []string{"kind"}),
		refcopies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "reference_copies_total",
			Help:      "Reference copies saved and purged.",
		}, []string{"action"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "refreshes_served_total",
			Help:      "Refresh requests answered with home state.",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "members",
			Help:      "Remote cohort members currently registered.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.processed.Describe(ch)
	c.dropped.Describe(ch)
	c.conflicts.Describe(ch)
	c.refcopies.Describe(ch)
	c.refreshes.Describe(ch)
	c.members.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.processed.Collect(ch)
	c.dropped.Collect(ch)
	c.conflicts.Collect(ch)
	c.refcopies.Collect(ch)
	c.refreshes.Collect(ch)
	c.members.Collect(ch)
}

func (c *Collector) eventProcessed(t event.Type) {
	if c == nil {
		return
	}
	c.processed.WithLabelValues(string(t)).Inc()
}

func (c *Collector) eventDropped(t event.Type, reason string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(string(t), reason).Inc()
}

func (c *Collector) conflictReported(kind string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(kind).Inc()
}

func (c *Collector) referenceCopies(action string, n int) {
	if c == nil {
		return
	}
	c.refcopies.WithLabelValues(action).Add(float64(n))
}

func (c *Collector) refreshServed() {
	if c == nil {
		return
	}
	c.refreshes.Inc()
}

func (c *Collector) memberCount(n int) {
	if c == nil {
		return
	}
	c.members.Set(float64(n))
}
