// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package metrics holds the Prometheus collectors for Callsync. Collectors are
// registered on the default registry at init and exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/callsync/internal/models"
)

var (
	// Sync run metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "callsync_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_sync_runs_total",
			Help: "Total number of sync runs by outcome",
		},
		[]string{"outcome"}, // success, partial, noop, failed, skipped
	)

	SyncCallsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_calls_processed_total",
			Help: "Total number of calls processed by match outcome",
		},
		[]string{"match"}, // matched, unmatched, no_phone
	)

	SyncPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callsync_source_pages_fetched_total",
			Help: "Total number of call feed pages fetched",
		},
	)

	SyncInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callsync_sync_in_progress",
			Help: "1 while a sync run is active",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callsync_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync run",
		},
	)

	SyncWatermark = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callsync_watermark_timestamp",
			Help: "Unix timestamp of the persisted sync watermark",
		},
	)

	// Destination metrics
	DestinationBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_destination_batches_total",
			Help: "Total number of destination batch writes by result",
		},
		[]string{"result"}, // success, failure
	)

	DestinationRecordsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callsync_destination_records_written_total",
			Help: "Total number of call records upserted",
		},
	)

	DirectoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callsync_directory_entries",
			Help: "Number of normalized phones in the last loaded customer directory",
		},
	)

	DirectoryDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callsync_directory_duplicate_phones_total",
			Help: "Directory entries that replaced an earlier entry with the same normalized phone",
		},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_retry_attempts_total",
			Help: "Failed attempts that were retried, by operation label",
		},
		[]string{"label"},
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
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Control API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_api_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callsync_api_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callsync_websocket_connections",
			Help: "Number of connected websocket clients",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_lifecycle_events_total",
			Help: "Lifecycle events delivered to sinks",
		},
		[]string{"sink", "result"},
	)
)

// RecordSyncRun records the counters for a finished run.
func RecordSyncRun(r *models.SyncRunResult) {
	SyncRunsTotal.WithLabelValues(RunOutcome(r)).Inc()
	if r.Skipped {
		return
	}

	SyncDuration.Observe(r.Duration.Seconds())
	SyncCallsProcessed.WithLabelValues("matched").Add(float64(r.MatchedCalls))
	SyncCallsProcessed.WithLabelValues("unmatched").Add(float64(r.UnmatchedCalls))
	SyncCallsProcessed.WithLabelValues("no_phone").Add(float64(r.NoPhoneCalls))
	if r.Success {
		SyncLastSuccess.Set(float64(r.Timestamp.Unix()))
	}
}

// RunOutcome maps a result to its outcome label.
func RunOutcome(r *models.SyncRunResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case !r.Success:
		return "failed"
	case r.NoOp:
		return "noop"
	case r.Partial || r.FailedBatches > 0:
		return "partial"
	default:
		return "success"
	}
}

// RecordWatermark updates the watermark gauge; a zero time clears it.
func RecordWatermark(t time.Time) {
	if t.IsZero() {
		SyncWatermark.Set(0)
		return
	}
	SyncWatermark.Set(float64(t.Unix()))
}

// RecordAPIRequest records a control API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEventDelivery counts one lifecycle event delivery attempt.
func RecordEventDelivery(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	EventsPublished.WithLabelValues(sink, result).Inc()
}
