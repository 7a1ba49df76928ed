// Package metrics provides Prometheus metrics for the Aster service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdapterFetchesTotal tracks adapter fetches by provider and status
	AdapterFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "adapter_fetches_total",
			Help:      "Total number of provider adapter fetches by status",
		},
		[]string{"provider", "status"},
	)

	// AdapterFetchDuration tracks adapter fetch duration in seconds
	AdapterFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "adapter_fetch_duration_seconds",
			Help:      "Duration of provider adapter fetches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// TokenRefreshesTotal tracks token refresh exchanges by provider and status
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of token refresh exchanges by status",
		},
		[]string{"provider", "status"},
	)

	// TokenRefreshWaiters tracks callers deduplicated onto an in-flight refresh
	TokenRefreshWaiters = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "auth",
			Name:      "token_refresh_waiters_total",
			Help:      "Total number of callers that waited on an in-flight refresh instead of starting one",
		},
	)

	// RefreshCyclesTotal tracks refresh cycles by outcome
	RefreshCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "refresh_cycles_total",
			Help:      "Total number of refresh cycles by outcome",
		},
		[]string{"status"},
	)

	// RefreshCycleDuration tracks full refresh cycle duration in seconds
	RefreshCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "refresh_cycle_duration_seconds",
			Help:      "Duration of full refresh cycles in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// DaysFetchedTotal tracks day slots written to the day store
	DaysFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "cache",
			Name:      "days_fetched_total",
			Help:      "Total number of day slots fetched and written to the day store",
		},
		[]string{"provider"},
	)

	// DaysServedFromCache tracks day slots satisfied without a network call
	DaysServedFromCache = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "cache",
			Name:      "days_served_from_cache_total",
			Help:      "Total number of day slots considered fresh and skipped by refresh cycles",
		},
	)
)

// RecordAdapterFetch records a provider adapter fetch metric
func RecordAdapterFetch(provider, status string, durationSeconds float64) {
	AdapterFetchesTotal.WithLabelValues(provider, status).Inc()
	AdapterFetchDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordTokenRefresh records a token refresh exchange metric
func RecordTokenRefresh(provider, status string) {
	TokenRefreshesTotal.WithLabelValues(provider, status).Inc()
}

// RecordRefreshCycle records a refresh cycle outcome metric
func RecordRefreshCycle(status string, durationSeconds float64) {
	RefreshCyclesTotal.WithLabelValues(status).Inc()
	RefreshCycleDuration.Observe(durationSeconds)
}
