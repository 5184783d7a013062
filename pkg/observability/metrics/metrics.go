// Package metrics exposes the Prometheus instrumentation for the decision
// pipeline. Counters are the only state mutated on the request path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionCounter counts emitted decisions by final action.
	DecisionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_decisions_total",
			Help: "Number of moderation decisions emitted, by final action",
		},
		[]string{"action"},
	)

	// StageDegradedCounter counts stages that contributed no evidence due to
	// a timeout, provider failure, or unavailable backend.
	StageDegradedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_stage_degraded_total",
			Help: "Number of pipeline stages degraded to no-evidence, by stage and cause",
		},
		[]string{"stage", "cause"},
	)

	// PipelineLatency observes end-to-end decision latency in seconds.
	PipelineLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_pipeline_latency_seconds",
			Help:    "End-to-end moderation pipeline latency",
			Buckets: []float64{.005, .01, .025, .05, .075, .1, .15, .25, .5, 1},
		},
	)

	// HotTriggerLookups counts hot-trigger cache lookups by outcome
	// (hit, miss, error, disabled).
	HotTriggerLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_hot_trigger_lookups_total",
			Help: "Hot-trigger cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// ResultCacheLookups counts decision result cache lookups by outcome.
	ResultCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_result_cache_lookups_total",
			Help: "Decision result cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// VectorSearches counts semantic matcher searches by outcome
	// (match, no_match, below_threshold, error, disabled).
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_vector_searches_total",
			Help: "Semantic matcher searches by outcome",
		},
		[]string{"outcome"},
	)

	// ValidationErrors counts rejected moderation requests.
	ValidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_validation_errors_total",
			Help: "Number of moderation requests rejected before the pipeline",
		},
	)
)

// RecordDecision records one emitted decision and its latency.
func RecordDecision(action string, latencySeconds float64) {
	DecisionCounter.WithLabelValues(action).Inc()
	PipelineLatency.Observe(latencySeconds)
}

// RecordStageDegraded records a stage that contributed no evidence.
func RecordStageDegraded(stage, cause string) {
	StageDegradedCounter.WithLabelValues(stage, cause).Inc()
}
