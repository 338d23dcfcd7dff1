// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package enterprise

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "metafed"
	metricsSubsystem = "enterprise"
)

// Collector reports federation health to prometheus. A nil Collector
// records nothing.
type Collector struct {
	skips     *prometheus.CounterVec
	abandoned *prometheus.CounterVec
}

// NewCollector returns a Collector ready for registration.
func NewCollector() *Collector {
	return &Collector{
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connector_skips_total",
			Help:      "Member failures skipped during federated reads.",
		}, []string{"collection", "reason"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fanouts_abandoned_total",
			Help:      "Fan-outs cut short by the caller's deadline.",
		}, []string{"operation"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.skips.Describe(ch)
	c.abandoned.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.skips.Collect(ch)
	c.abandoned.Collect(ch)
}

func (c *Collector) connectorSkipped(collection, reason string) {
	if c == nil {
		return
	}
	c.skips.WithLabelValues(collection, reason).Inc()
}

func (c *Collector) fanoutAbandoned(operation string) {
	if c == nil {
		return
	}
	c.abandoned.WithLabelValues(operation).Inc()
}
