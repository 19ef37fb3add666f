// Package metrics declares the Prometheus instruments of the calculation
// engine. All collectors register with the default registry at init and are
// safe for concurrent use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pension_engine"

var (
	// CalculationsTotal counts calculation requests by outcome (SUCCESS, FAILURE).
	CalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calculations_total",
		Help:      "Calculation requests processed, by outcome.",
	}, []string{"outcome"})

	CalculationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "calculation_duration_seconds",
		Help:      "Wall time spent processing one calculation request.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// MutationsTotal counts processed mutations by definition name and result
	// (applied, rejected, unknown).
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Mutations processed, by definition name and result.",
	}, []string{"mutation", "result"})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Calculation messages emitted, by level and code.",
	}, []string{"level", "code"})

	// RateLookupsTotal counts accrual rate lookups by result: hit (cache),
	// fetched (registry), fallback (registry failed) or default (no registry).
	RateLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheme_registry",
		Name:      "rate_lookups_total",
		Help:      "Accrual rate lookups, by result.",
	}, []string{"result"})
)

const (
	MutationApplied  = "applied"
	MutationRejected = "rejected"
	MutationUnknown  = "unknown"

	RateHit      = "hit"
	RateFetched  = "fetched"
	RateFallback = "fallback"
	RateDefault  = "default"
)
