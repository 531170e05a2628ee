// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the guide engine:
// - table updates, merges and overlap repair
// - persistence flushes against the store
// - backend fetches and circuit breaker state
// - scheduler runs
// - push notifications
// - HTTP API traffic

var (
	// EPG table metrics
	EPGTables = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "epg_tables",
			Help: "Current number of EPG tables held by the registry",
		},
	)

	EPGUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epg_updates_total",
			Help: "Total number of table update attempts by result",
		},
		[]string{"result"}, // "success", "not_due", "fetch_error"
	)

	EPGUpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epg_update_duration_seconds",
			Help:    "Duration of a single table update including fetch and merge",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	EPGEventsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epg_events_merged_total",
			Help: "Total number of incoming events merged into tables",
		},
	)

	EPGOverlapsFixed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epg_overlaps_fixed_total",
			Help: "Total number of overlapping events repaired",
		},
		[]string{"action"}, // "trimmed", "dropped"
	)

	EPGEventsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epg_events_cleaned_total",
			Help: "Total number of events removed by retention cleanup",
		},
	)

	EPGPersists = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epg_persist_total",
			Help: "Total number of table persist attempts by result",
		},
		[]string{"result"}, // "success", "skipped", "error"
	)

	EPGPersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epg_persist_duration_seconds",
			Help:    "Duration of table persist operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	EPGPersistedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epg_persisted_events_total",
			Help: "Total number of event rows written to the store",
		},
		[]string{"operation"}, // "upsert", "delete"
	)

	// Backend metrics
	BackendFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_fetch_duration_seconds",
			Help:    "Duration of backend event fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	BackendFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_fetch_errors_total",
			Help: "Total number of failed backend requests",
		},
		[]string{"operation", "status_code"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Scheduler metrics
	ScannerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_runs_total",
			Help: "Total periodic scheduler runs by task and result",
		},
		[]string{"task", "result"}, // task: "scan", "playing_check", "flush"
	)

	ScannerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanner_run_duration_seconds",
			Help:    "Duration of periodic scheduler runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"task"},
	)

	// Push notification metrics
	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "Total push notifications processed by state and result",
		},
		[]string{"state", "result"}, // result: "applied", "not_found", "unknown_channel", "invalid"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordUpdate records the outcome of one table update.
func RecordUpdate(result string, duration time.Duration) {
	EPGUpdates.WithLabelValues(result).Inc()
	if result != "not_due" {
		EPGUpdateDuration.Observe(duration.Seconds())
	}
}

// RecordPersist records the outcome of one table persist.
func RecordPersist(duration time.Duration, upserts, deletes int, err error) {
	if err != nil {
		EPGPersists.WithLabelValues("error").Inc()
		return
	}
	EPGPersists.WithLabelValues("success").Inc()
	EPGPersistDuration.Observe(duration.Seconds())
	EPGPersistedEvents.WithLabelValues("upsert").Add(float64(upserts))
	EPGPersistedEvents.WithLabelValues("delete").Add(float64(deletes))
}

// RecordBackendFetch records a backend request.
// statusCode is 0 when no HTTP response was received.
func RecordBackendFetch(operation string, statusCode int, duration time.Duration, err error) {
	BackendFetchDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		BackendFetchErrors.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	}
}

// RecordScannerRun records one periodic scheduler run.
func RecordScannerRun(task string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ScannerRuns.WithLabelValues(task, result).Inc()
	ScannerRunDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordAPIRequest records API request metrics.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
