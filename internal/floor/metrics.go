package floor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floor_submissions_total",
		Help: "Transcripts submitted, by target participant",
	}, []string{"participant"})

	metricQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floor_queued_total",
		Help: "Submissions queued because the participant was busy",
	}, []string{"participant"})

	metricDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floor_dispatches_total",
		Help: "Successful generations",
	}, []string{"participant"})

	metricDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floor_deferred_dispatches_total",
		Help: "Generations run by auto-drain after a dispatch completed",
	}, []string{"participant"})

	metricFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floor_generation_failures_total",
		Help: "Failed generations",
	}, []string{"participant"})

	metricBusy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "floor_participant_busy",
		Help: "1 while a generation is in flight for the participant",
	}, []string{"participant"})

	metricGenerateMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "floor_generate_ms",
		Help:    "Generator latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})
)
