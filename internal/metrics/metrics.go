// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

// Package metrics provides Prometheus instrumentation for Playtally.
//
// Instrumented areas:
//   - Session polling (tick duration, upstream failures)
//   - Observation ledger (accepted vs deduplicated samples, write failures)
//   - Live broadcast fan-out (subscriber count, dropped messages)
//   - Sync jobs (directory, catalog, backfill)
//   - DuckDB query performance
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session poller metrics
	PollTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_poll_ticks_total",
			Help: "Total number of session poll ticks executed",
		},
	)

	PollFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_poll_failures_total",
			Help: "Total number of poll ticks abandoned due to upstream errors",
		},
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playtally_poll_duration_seconds",
			Help:    "Duration of a full poll tick (fetch, dedup, persist, publish)",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playtally_active_sessions",
			Help: "Number of active playback sessions seen in the last poll",
		},
	)

	// Observation ledger metrics
	ObservationsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_observations_accepted_total",
			Help: "Total observations accepted by the diff filter and persisted",
		},
	)

	ObservationsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_observations_skipped_total",
			Help: "Total samples skipped because the position had not changed",
		},
	)

	MalformedSamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_malformed_samples_total",
			Help: "Total session samples skipped due to missing required fields",
		},
	)

	LedgerWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_ledger_write_failures_total",
			Help: "Total failed ledger write transactions",
		},
	)

	// Broadcast metrics
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playtally_live_subscribers",
			Help: "Current number of live now-playing subscribers",
		},
	)

	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_broadcasts_total",
			Help: "Total now-playing snapshots broadcast to subscribers",
		},
	)

	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_broadcast_drops_total",
			Help: "Total snapshots dropped because a subscriber queue was full",
		},
	)

	// Sync job metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtally_sync_runs_total",
			Help: "Total sync job runs by kind and outcome",
		},
		[]string{"job", "status"}, // job: directory, catalog, backfill; status: success, error
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playtally_sync_duration_seconds",
			Help:    "Duration of sync job runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)

	CatalogItemsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playtally_catalog_items_imported_total",
			Help: "Total library items imported by catalog sync",
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playtally_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtally_db_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Upstream circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playtally_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtally_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtally_circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"breaker", "result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playtally_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status class",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveDBQuery records the duration and outcome of a database query.
func ObserveDBQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// ObserveSyncRun records a completed sync job run.
func ObserveSyncRun(job string, start time.Time, err error) {
	SyncDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	SyncRunsTotal.WithLabelValues(job, status).Inc()
}
