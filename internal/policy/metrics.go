package policy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Kocoro-lab/snippets/internal/metrics"
)

var (
	policyErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_policy_errors_total",
			Help: "Total number of policy evaluation errors",
		},
		[]string{"error_type", "mode"},
	)

	policyDryRunDivergence = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_policy_dry_run_divergence_total",
			Help: "Dry-run decisions where OPA disagreed with the built-in rules",
		},
		[]string{"divergence_type"}, // "would_deny", "would_allow"
	)

	policyLoadTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snippets_policy_load_timestamp_seconds",
			Help: "Timestamp of last successful policy load",
		},
	)

	policyCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snippets_policy_modules_loaded",
			Help: "Number of policy modules currently loaded",
		},
	)

	policyVersionInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snippets_policy_version_info",
			Help: "Hash of the loaded policy set",
		},
		[]string{"version_hash"},
	)

	policyCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snippets_policy_cache_hits_total",
			Help: "Total number of policy decision cache hits",
		},
	)

	policyCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snippets_policy_cache_misses_total",
			Help: "Total number of policy decision cache misses",
		},
	)
)

// RecordEvaluation records an access decision
func RecordEvaluation(action string, allow bool, mode Mode, durationSeconds float64) {
	decision := "allow"
	if !allow {
		decision = "deny"
	}
	metrics.PolicyDecisions.WithLabelValues(action, decision, string(mode)).Inc()
	if durationSeconds > 0 {
		metrics.PolicyEvaluationDuration.Observe(durationSeconds)
	}
}

// RecordError records a policy failure
func RecordError(errorType string, mode Mode) {
	policyErrors.WithLabelValues(errorType, string(mode)).Inc()
}

// RecordDryRunDivergence records a dry-run disagreement
func RecordDryRunDivergence(divergenceType string) {
	policyDryRunDivergence.WithLabelValues(divergenceType).Inc()
}

// RecordPolicyLoad records a successful policy load
func RecordPolicyLoad(count int, timestamp float64, versionHash string) {
	policyCount.Set(float64(count))
	policyLoadTime.Set(timestamp)
	policyVersionInfo.Reset()
	policyVersionInfo.WithLabelValues(versionHash).Set(1)
}
