package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_turns_total",
			Help: "Agent turns by terminal state.",
		},
		[]string{"final_state"},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_guard_rejections_total",
			Help: "Candidate statements rejected by the query guard, by violation kind.",
		},
		[]string{"kind"},
	)
	resultTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlagent_result_truncations_total",
			Help: "Result sets truncated at the configured row limit.",
		},
	)
	generationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_generation_failures_total",
			Help: "SQL generation failures by kind.",
		},
		[]string{"kind"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlagent_llm_request_duration_seconds",
			Help:    "Language model completion latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlagent_query_duration_seconds",
			Help:    "Warehouse query latency by outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlagent_active_sessions",
			Help: "Sessions currently held by the session manager.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		guardRejectionsTotal,
		resultTruncationsTotal,
		generationFailuresTotal,
		llmRequestDurationSeconds,
		queryDurationSeconds,
		activeSessions,
	)
}

func ObserveTurn(finalState string) {
	turnsTotal.WithLabelValues(finalState).Inc()
}

func IncrementGuardRejection(kind string) {
	guardRejectionsTotal.WithLabelValues(kind).Inc()
}

func IncrementResultTruncation() {
	resultTruncationsTotal.Inc()
}

func IncrementGenerationFailure(kind string) {
	generationFailuresTotal.WithLabelValues(kind).Inc()
}

func ObserveLLMRequest(elapsed time.Duration) {
	llmRequestDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveQuery(outcome string, elapsed time.Duration) {
	queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}
