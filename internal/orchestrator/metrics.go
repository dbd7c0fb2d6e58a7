package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_outcomes_total",
		Help: "Pipeline results by kind",
	}, []string{"kind"}) // unit, queued, empty, error, deferred_unit

	metricFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_collaborator_failures_total",
		Help: "Collaborator failures by stage",
	}, []string{"stage"})

	metricStageMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_ms",
		Help:    "Stage latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(20, 1.6, 14),
	}, []string{"stage"}) // stt, llm, tts, total
)
