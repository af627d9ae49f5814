package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pass_backend_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"path", "method", "status"},
	)

	// DatabaseOperations tracks repository statements
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pass_backend_database_operations_total",
			Help: "Number of database operations",
		},
		[]string{"operation", "status"},
	)

	// VerifierRequests tracks calls to the registration verifier
	VerifierRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pass_backend_verifier_requests_total",
			Help: "Number of registration verifier calls by outcome",
		},
		[]string{"outcome"},
	)

	// PassOperations tracks check, upload and save outcomes
	PassOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pass_backend_pass_operations_total",
			Help: "Number of pass lifecycle operations",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks service level operation latency
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pass_backend_operation_duration_seconds",
			Help:    "Duration of service operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// StoredBytes tracks bytes written to disk per asset kind
	StoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pass_backend_stored_bytes_total",
			Help: "Bytes written to file storage",
		},
		[]string{"kind"},
	)

	// AuditEventsDropped tracks audit events dropped because the buffer was full
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pass_backend_audit_events_dropped_total",
			Help: "Audit events dropped due to a full buffer",
		},
	)

	// ActiveConnections tracks active connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pass_backend_active_connections",
			Help: "Number of active connections",
		},
	)
)
