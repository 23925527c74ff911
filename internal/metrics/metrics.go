// Package metrics holds the Prometheus collectors exported at /__metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// outcome: success, invalid_credentials, disabled
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Credential checks by outcome",
	}, []string{"outcome"})

	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sessions_started_total",
		Help: "Sessions opened by purpose",
	}, []string{"type"})

	// outcome: verified, invalid, expired, exhausted
	SessionVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_session_verifications_total",
		Help: "Code verifications by outcome",
	}, []string{"outcome"})

	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Tokens signed by kind",
	}, []string{"kind"})

	CodeDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_code_delivery_failures_total",
		Help: "SMS code deliveries that failed",
	})

	CacheInvalidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_cache_invalidation_failures_total",
		Help: "Identity cache invalidations that failed",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_identity_cache_lookups_total",
		Help: "Identity cache lookups by result",
	}, []string{"result"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "auth_circuit_breaker_state",
		Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
)
