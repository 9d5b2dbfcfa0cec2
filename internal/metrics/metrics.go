// Package metrics exposes Prometheus instrumentation for the arbitrage
// engine: counters for opportunities evaluated and trades, and histograms
// for the observed gap distribution. Grounded in the detector metrics of
// mselser95-polymarket-arb and the counters in chidi150c-coinbase.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set groups the counters/histograms one engine instance reports against.
// Callers register a Set per profile so per-profile dashboards can filter
// on the "profile" label.
type Set struct {
	OpportunitiesEvaluated *prometheus.CounterVec
	GapObserved            *prometheus.HistogramVec
	TradesOpened           *prometheus.CounterVec
	TradesResolved         *prometheus.CounterVec
	ForceResolutions       *prometheus.CounterVec
}

// NewSet registers a fresh Set against reg, labeled by profile name.
func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		OpportunitiesEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Name:      "opportunities_evaluated_total",
			Help:      "Entry-gate evaluations per coin, regardless of outcome.",
		}, []string{"profile", "coin"}),
		GapObserved: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arb",
			Name:      "gap_observed",
			Help:      "Distribution of the best available gap per tick.",
			Buckets:   []float64{0, 0.01, 0.02, 0.04, 0.06, 0.08, 0.10, 0.15, 0.20, 0.30},
		}, []string{"profile", "coin"}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Name:      "trades_opened_total",
			Help:      "Positions opened.",
		}, []string{"profile", "coin", "direction"}),
		TradesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Name:      "trades_resolved_total",
			Help:      "Positions resolved, labeled by outcome.",
		}, []string{"profile", "coin", "outcome"}),
		ForceResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Name:      "force_resolutions_total",
			Help:      "Positions closed via the force-resolution deadline ladder.",
		}, []string{"profile", "coin"}),
	}

	reg.MustRegister(s.OpportunitiesEvaluated, s.GapObserved, s.TradesOpened, s.TradesResolved, s.ForceResolutions)
	return s
}
