package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "client_utterances_total",
		Help: "Utterances sent to the server, by outcome",
	}, []string{"outcome"}) // unit, queued, empty, error

	metricHandleMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "client_roundtrip_ms",
		Help:    "Speech end to playable unit, in milliseconds",
		Buckets: prometheus.ExponentialBuckets(100, 1.6, 12),
	})
)
