package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "jurifix", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "jurifix", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// CorrectionRuns counts pipeline runs by agent and outcome (ok, empty_input,
	// unknown_agent, external_error, not_found, invalid_state, error).
	CorrectionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "jurifix", Name: "correction_runs_total", Help: "Number of correction pipeline runs by agent and outcome."},
		[]string{"agent", "outcome"},
	)
	CorrectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "jurifix", Name: "correction_duration_seconds", Help: "Wall-clock time spent in the completion call.", Buckets: prometheus.ExponentialBuckets(0.25, 2, 8)},
		[]string{"agent"},
	)
	Redactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "jurifix", Name: "redactions_total", Help: "Number of substrings replaced by the anonymizer, by rule."},
		[]string{"rule"},
	)
	CompletionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "jurifix", Name: "completion_retries_total", Help: "Number of retried completion calls."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(CorrectionRuns)
	reg.MustRegister(CorrectionDuration)
	reg.MustRegister(Redactions)
	reg.MustRegister(CompletionRetries)
}
