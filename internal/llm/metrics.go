package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "Completion requests by provider and result",
	}, []string{"provider", "result"})

	metricLatencyMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_latency_ms",
		Help:    "Full completion latency (ms)",
		Buckets: prometheus.ExponentialBuckets(100, 1.6, 12),
	}, []string{"provider"})

	metricTTFTMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_ttft_ms",
		Help:    "Time to first streamed token (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	})
)
