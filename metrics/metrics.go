// Package metrics declares the Prometheus collectors of the renewal engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for AggregationsTotal.
const (
	OutcomeComplete = "complete"
	OutcomeDegraded = "degraded"
	OutcomeRejected = "rejected"
)

// Result labels for PeriodFetchesTotal.
const (
	FetchOK      = "ok"
	FetchFailed  = "failed"
	FetchSkipped = "skipped"
)

var (
	// Aggregation metrics
	AggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewal_aggregations_total",
			Help: "Beneficiary aggregations by outcome",
		},
		[]string{"outcome"},
	)

	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renewal_aggregation_duration_seconds",
			Help:    "Time to build one beneficiary snapshot",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	PeriodFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewal_period_fetches_total",
			Help: "Per-renewal statistic fetches by result",
		},
		[]string{"result"},
	)

	// Display unit cache
	DisplayCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renewal_display_cache_hits_total",
			Help: "Display unit conversions served from cache",
		},
	)

	DisplayCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renewal_display_cache_misses_total",
			Help: "Display unit conversions computed",
		},
	)

	// Scheduler
	RenewalsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renewal_renewals_created_total",
			Help: "Renewals appended by the roller",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AggregationsTotal,
		AggregationDuration,
		PeriodFetchesTotal,
		DisplayCacheHits,
		DisplayCacheMisses,
		RenewalsCreated,
	)
}
