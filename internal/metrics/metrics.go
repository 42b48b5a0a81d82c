// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the pipeline reports into.
type Metrics struct {
	ConversionJobs       *prometheus.CounterVec
	ConversionDuration   prometheus.Histogram
	ConversionQueueDepth prometheus.Gauge
	Decisions            *prometheus.CounterVec
}

// New registers all collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConversionJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doc_approvals",
			Name:      "conversion_jobs_total",
			Help:      "Conversion jobs by terminal status.",
		}, []string{"status"}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "doc_approvals",
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of renderer conversion jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		ConversionQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "doc_approvals",
			Name:      "conversion_queue_depth",
			Help:      "Requests waiting for a renderer slot.",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doc_approvals",
			Name:      "approval_decisions_total",
			Help:      "Approval decisions by action and outcome.",
		}, []string{"action", "outcome"}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
