package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snippets_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Complexity metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_complexity_analyses_total",
			Help: "Total number of complexity analyses by estimated label",
		},
		[]string{"estimated", "source"},
	)

	ComplexityLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snippets_complexity_latency_seconds",
			Help:    "Complexity analysis latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// Snippet metrics
	SnippetOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_operations_total",
			Help: "Total number of snippet write operations",
		},
		[]string{"operation", "status"},
	)

	SnippetCodeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snippets_code_bytes",
			Help:    "Size of stored snippet code in bytes",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 50000},
		},
	)

	// Auth metrics
	AuthEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_auth_events_total",
			Help: "Total number of authentication events",
		},
		[]string{"event", "status"},
	)

	// Policy metrics
	PolicyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_policy_decisions_total",
			Help: "Total number of snippet access decisions",
		},
		[]string{"action", "decision", "mode"},
	)

	PolicyEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snippets_policy_evaluation_seconds",
			Help:    "Policy evaluation latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	// Rate limit metrics
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_rate_limit_rejections_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"limiter"},
	)

	// Database write queue metrics
	WriteQueueFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snippets_write_queue_sync_fallback_total",
			Help: "Total number of queued writes executed synchronously because the queue was full",
		},
	)

	AuditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_audit_writes_total",
			Help: "Total number of audit log rows written",
		},
		[]string{"status"},
	)
)

// RecordHTTPMetrics records metrics for a completed HTTP request
func RecordHTTPMetrics(method, route, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordAnalysis records a complexity analysis. source is "analyze" for ad hoc
// requests and "auto_suggest" when filling in a snippet's complexity.
func RecordAnalysis(estimated, source string, durationSeconds float64) {
	AnalysesTotal.WithLabelValues(estimated, source).Inc()
	if durationSeconds > 0 {
		ComplexityLatency.Observe(durationSeconds)
	}
}

// RecordSnippetOperation records a create, update or delete outcome
func RecordSnippetOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SnippetOperations.WithLabelValues(operation, status).Inc()
}

// RecordAuthEvent records an authentication event outcome
func RecordAuthEvent(event string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	AuthEvents.WithLabelValues(event, status).Inc()
}
