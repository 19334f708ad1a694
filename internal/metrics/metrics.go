// Package metrics defines custom Prometheus metrics for Stoxy.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoxy_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stoxy_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stoxy_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// CDMI and backend metrics.
var (
	// CDMIOperationsTotal counts handler operations (create, update, delete,
	// read, stream) by entity kind and outcome.
	CDMIOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoxy_cdmi_operations_total",
			Help: "CDMI operations by type",
		},
		[]string{"operation", "kind", "status"},
	)

	// BackendOperationsTotal counts backend store calls by scheme.
	BackendOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoxy_backend_operations_total",
			Help: "Backend store operations by scheme",
		},
		[]string{"scheme", "operation", "status"},
	)

	// BackendOperationDuration observes backend store latency in seconds.
	BackendOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stoxy_backend_operation_duration_seconds",
			Help:    "Backend store latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme", "operation"},
	)

	// AuditEventsTotal counts audit events by sink and delivery outcome.
	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoxy_audit_events_total",
			Help: "Audit events emitted",
		},
		[]string{"sink", "status"},
	)

	// IndexEntries reports the size of the last object-ID index rebuild.
	IndexEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stoxy_index_entries",
			Help: "Entities seen by the last object-ID index rebuild",
		},
	)

	// BytesReceivedTotal counts content bytes accepted by PUT.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stoxy_bytes_received_total",
			Help: "Total bytes received (request bodies)",
		},
	)

	// BytesSentTotal counts content bytes streamed by non-CDMI GET.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stoxy_bytes_sent_total",
			Help: "Total bytes sent (streamed content)",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPResponseSize,
			CDMIOperationsTotal,
			BackendOperationsTotal,
			BackendOperationDuration,
			AuditEventsTotal,
			IndexEntries,
			BytesReceivedTotal,
			BytesSentTotal,
		)
	})
}

// Status returns the outcome label for err.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// NormalizePath maps hierarchy paths to low-cardinality label templates.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/metrics", "/openapi.json":
		return path
	case "/docs", "/docs/":
		return "/docs"
	case "/", "":
		return "/"
	}
	if strings.HasPrefix(path, "/docs/") {
		return "/docs"
	}
	if path == "/cdmi_objectid" || path == "/cdmi_objectid/" {
		return "/cdmi_objectid/"
	}
	if strings.HasPrefix(path, "/cdmi_objectid/") {
		return "/cdmi_objectid/{id}"
	}
	if strings.HasSuffix(path, "/") {
		return "/{container}/"
	}
	return "/{object}"
}
