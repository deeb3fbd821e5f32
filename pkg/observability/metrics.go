package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the identity bridge
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication flow metrics
	AuthOperationsTotal   *prometheus.CounterVec
	AuthOperationDuration *prometheus.HistogramVec
	ChallengesIssuedTotal *prometheus.CounterVec

	// Validator metrics
	ValidatorRunsTotal       *prometheus.CounterVec
	ValidatorIdentitiesTotal *prometheus.CounterVec

	// Signing key set metrics
	KeySetFetchesTotal  *prometheus.CounterVec
	KeyCacheHitsTotal   prometheus.Counter
	KeyCacheMissesTotal prometheus.Counter

	// User reconciliation metrics
	UsersCreatedTotal      prometheus.Counter
	ReconcileFailuresTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idbridge_auth_operations_total",
				Help: "Total number of identity provider operations",
			},
			[]string{"operation", "outcome"},
		),
		AuthOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idbridge_auth_operation_duration_seconds",
				Help:    "Identity provider operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ChallengesIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idbridge_auth_challenges_issued_total",
				Help: "Total number of authentication challenges issued",
			},
			[]string{"challenge"},
		),

		ValidatorRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idbridge_validator_runs_total",
				Help: "Total number of validator executions",
			},
			[]string{"validator"},
		),
		ValidatorIdentitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idbridge_validator_identities_total",
				Help: "Total number of identities produced by validators",
			},
			[]string{"validator"},
		),

		KeySetFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idbridge_keyset_fetches_total",
				Help: "Total number of remote signing-key set fetches",
			},
			[]string{"status"},
		),
		KeyCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "idbridge_key_cache_hits_total",
				Help: "Total number of signing-key cache hits",
			},
		),
		KeyCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "idbridge_key_cache_misses_total",
				Help: "Total number of signing-key cache misses",
			},
		),

		UsersCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "idbridge_users_created_total",
				Help: "Total number of local users created from verified identities",
			},
		),
		ReconcileFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "idbridge_reconcile_failures_total",
				Help: "Total number of user reconciliation failures",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthOperationsTotal,
		m.AuthOperationDuration,
		m.ChallengesIssuedTotal,
		m.ValidatorRunsTotal,
		m.ValidatorIdentitiesTotal,
		m.KeySetFetchesTotal,
		m.KeyCacheHitsTotal,
		m.KeyCacheMissesTotal,
		m.UsersCreatedTotal,
		m.ReconcileFailuresTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAuthOperation records metrics for a completed provider operation
func (m *Metrics) ObserveAuthOperation(operation, outcome string, duration time.Duration) {
	m.AuthOperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.AuthOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
