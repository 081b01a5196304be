// Package metrics exposes Prometheus instrumentation for the HTTP surface,
// the store, and the per-namespace connection pools.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncstore_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncstore_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_store_operations_total",
			Help: "Total number of store operations by outcome",
		},
		[]string{"operation", "namespace", "outcome"},
	)

	permissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_permission_checks_total",
			Help: "Permission resolver decisions",
		},
		[]string{"decision"},
	)

	hpkeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_hpke_operations_total",
			Help: "HPKE request decryptions and response encryptions",
		},
		[]string{"direction", "outcome"},
	)

	dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syncstore_db_connections_open",
			Help: "Number of open database connections per store file",
		},
		[]string{"store"},
	)

	dbConnectionsInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syncstore_db_connections_in_use",
			Help: "Number of database connections currently in use per store file",
		},
		[]string{"store"},
	)

	dbWaitDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syncstore_db_wait_seconds_total",
			Help: "Cumulative time spent waiting for a pooled connection",
		},
		[]string{"store"},
	)
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records one completed HTTP request.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RequestStarted marks a request in flight; the returned func marks it done.
func RequestStarted() func() {
	httpRequestsInFlight.Inc()
	return httpRequestsInFlight.Dec
}

// RecordStoreOperation records one store operation outcome.
func RecordStoreOperation(operation, namespace string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	storeOperations.WithLabelValues(operation, namespace, outcome).Inc()
}

// RecordPermissionCheck records an allow/deny decision.
func RecordPermissionCheck(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	permissionChecks.WithLabelValues(decision).Inc()
}

// RecordHPKE records a wrapper operation. direction is "request" or
// "response".
func RecordHPKE(direction string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	hpkeOperations.WithLabelValues(direction, outcome).Inc()
}

// PoolStats is the subset of sql.DBStats the sampler publishes.
type PoolStats struct {
	OpenConnections int
	InUse           int
	WaitDuration    time.Duration
}

// RecordPoolStats publishes connection-pool gauges for one store file.
func RecordPoolStats(storeName string, stats PoolStats) {
	dbConnectionsOpen.WithLabelValues(storeName).Set(float64(stats.OpenConnections))
	dbConnectionsInUse.WithLabelValues(storeName).Set(float64(stats.InUse))
	dbWaitDuration.WithLabelValues(storeName).Set(stats.WaitDuration.Seconds())
}
