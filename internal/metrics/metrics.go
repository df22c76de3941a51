// Package metrics defines the Prometheus collectors exported by rqg.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// =============================================================================
// Prometheus Metrics for Gate Analysis
// =============================================================================

// Metrics holds the analysis collectors. A nil *Metrics records nothing.
type Metrics struct {
	// decisions counts analyses by outcome.
	// Labels: decision (PASS, SOFT_BLOCK, HARD_BLOCK)
	decisions *prometheus.CounterVec

	// analysisDuration measures end-to-end analysis time.
	analysisDuration prometheus.Histogram

	// newClusters counts failure clusters seen for the first time.
	newClusters prometheus.Counter

	// degradations counts per-result analysis failures.
	// Labels: stage (fingerprint, hints)
	degradations *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rqg",
			Name:      "decisions_total",
			Help:      "Total gate decisions by outcome",
		}, []string{"decision"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rqg",
			Name:      "analysis_duration_seconds",
			Help:      "Time taken to analyze one run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		newClusters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rqg",
			Name:      "new_failure_clusters_total",
			Help:      "Total failure clusters seen for the first time",
		}),
		degradations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rqg",
			Name:      "analysis_degradations_total",
			Help:      "Total per-result analysis failures by stage",
		}, []string{"stage"}),
	}
}

// ObserveAnalysis records a completed analysis.
func (m *Metrics) ObserveAnalysis(decision core.Decision, newClusters int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(decision)).Inc()
	m.analysisDuration.Observe(elapsed.Seconds())
	m.newClusters.Add(float64(newClusters))
}

// ObserveDegradation records a per-result failure at stage.
func (m *Metrics) ObserveDegradation(stage string) {
	if m == nil {
		return
	}
	m.degradations.WithLabelValues(stage).Inc()
}
