package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryloom_pipeline_requests_total",
			Help: "Total number of pipeline requests by intent and outcome.",
		},
		[]string{"intent", "outcome"},
	)
	pipelineRepairAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryloom_pipeline_repair_attempts_total",
			Help: "Total number of repair attempts by triggering stage.",
		},
		[]string{"trigger"},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryloom_validation_rejections_total",
			Help: "Total number of validator rejections by reason kind.",
		},
		[]string{"kind"},
	)
	pipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queryloom_pipeline_duration_seconds",
			Help:    "End-to-end pipeline latency per request.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	resultCacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryloom_result_cache_events_total",
			Help: "Result cache hits, misses and errors.",
		},
		[]string{"event"},
	)
	retrievalDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queryloom_retrieval_degraded_total",
			Help: "Requests served with an empty schema context after a retrieval failure.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		pipelineRepairAttemptsTotal,
		validationRejectionsTotal,
		pipelineDurationSeconds,
		resultCacheEventsTotal,
		retrievalDegradedTotal,
	)
}

func ObservePipeline(intent, outcome string, elapsed time.Duration) {
	pipelineRequestsTotal.WithLabelValues(intent, outcome).Inc()
	pipelineDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementRepairAttempt(trigger string) {
	pipelineRepairAttemptsTotal.WithLabelValues(trigger).Inc()
}

func IncrementValidationRejection(kind string) {
	validationRejectionsTotal.WithLabelValues(kind).Inc()
}

func IncrementCacheEvent(event string) {
	resultCacheEventsTotal.WithLabelValues(event).Inc()
}

func IncrementRetrievalDegraded() {
	retrievalDegradedTotal.Inc()
}
