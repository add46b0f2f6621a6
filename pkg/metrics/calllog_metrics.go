// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeClean   = "clean"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calllog",
		Name:      "refresh_total",
		Help:      "Refresh cycles by outcome",
	}, []string{"outcome"})

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "calllog",
		Name:      "refresh_duration_seconds",
		Help:      "Refresh cycle duration by stage",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calllog",
		Name:      "mutations_total",
		Help:      "Applied mutations by kind",
	}, []string{"kind"})

	lookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calllog",
		Name:      "realtime_lookup_total",
		Help:      "Realtime enrichment lookups by result",
	}, []string{"result"})

	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "calllog",
		Name:      "provider_call_duration_seconds",
		Help:      "Lookup provider call latency",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"provider", "op"})
)

// RecordRefresh counts one refresh cycle.
func RecordRefresh(outcome string, elapsed time.Duration) {
	refreshTotal.WithLabelValues(outcome).Inc()
	refreshDuration.WithLabelValues("total").Observe(elapsed.Seconds())
}

// ObserveStage records the duration of one refresh stage.
func ObserveStage(stage string, elapsed time.Duration) {
	refreshDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordMutations counts applied mutations.
func RecordMutations(inserts, updates, deletes int) {
	mutationsTotal.WithLabelValues("insert").Add(float64(inserts))
	mutationsTotal.WithLabelValues("update").Add(float64(updates))
	mutationsTotal.WithLabelValues("delete").Add(float64(deletes))
}

// RecordLookup counts a realtime lookup result: hit, miss, complete or error.
func RecordLookup(result string) {
	lookupTotal.WithLabelValues(result).Inc()
}

// ProviderTimer starts a timer for one provider call. Call the returned
// function when the call finishes.
func ProviderTimer(provider, op string) func() {
	timer := prometheus.NewTimer(providerDuration.WithLabelValues(provider, op))
	return func() { timer.ObserveDuration() }
}
