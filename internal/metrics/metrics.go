// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package metrics provides Prometheus instrumentation for both
// Trackplane binaries: position store operations, broadcast hub
// fan-out, ingestion throughput, API latency, and gateway proxying.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Position store metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of position store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of position store operation errors",
		},
		[]string{"operation"},
	)

	StoreAppendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_appends_total",
			Help: "Total number of position samples appended",
		},
	)

	// Broadcast hub metrics
	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Current number of connected broadcast subscribers",
		},
	)

	HubDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_deliveries_total",
			Help: "Total number of event deliveries to subscribers",
		},
	)

	HubDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_dropped_total",
			Help: "Total number of events dropped",
		},
		[]string{"reason"}, // "slow_client", "channel_full", "closed"
	)

	HubEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_evictions_total",
			Help: "Total number of subscribers evicted after send failures",
		},
	)

	// Ingestion metrics
	IngestAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_updates_accepted_total",
			Help: "Total number of location updates accepted and stored",
		},
	)

	IngestRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_updates_rejected_total",
			Help: "Total number of location updates rejected",
		},
		[]string{"reason"}, // "validation", "storage", "rate_limited", "malformed"
	)

	// API endpoint metrics
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
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Gateway metrics
	GatewayProxiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxied_requests_total",
			Help: "Total number of requests proxied to backends",
		},
		[]string{"backend", "outcome"}, // outcome: "ok", "error", "open"
	)

	GatewayProxyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_proxy_duration_seconds",
			Help:    "Gateway proxy round-trip duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	GatewayUnroutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_unrouted_requests_total",
			Help: "Total number of requests with no matching route rule",
		},
	)

	// Circuit breaker state: 0=closed, 0.5=half-open, 1=open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state per backend (0=closed, 0.5=half-open, 1=open)",
		},
		[]string{"backend"},
	)
)

// RecordStoreOp records one store operation with its outcome.
func RecordStoreOp(operation string, duration time.Duration, err error) {
	StoreOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreOpErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProxy records one proxied gateway request.
func RecordProxy(backend, outcome string, duration time.Duration) {
	GatewayProxiedTotal.WithLabelValues(backend, outcome).Inc()
	GatewayProxyDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// SetBreakerState updates the breaker gauge for a backend.
func SetBreakerState(backend string, state float64) {
	CircuitBreakerState.WithLabelValues(backend).Set(state)
}
