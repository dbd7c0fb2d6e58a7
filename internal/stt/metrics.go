package stt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_audio_bytes_total",
		Help: "Total audio bytes sent to the provider",
	})

	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_requests_total",
		Help: "Transcription requests by result",
	}, []string{"result"}) // ok, error, http_error, decode_error

	metricEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_empty_transcripts_total",
		Help: "Transcriptions that produced no text",
	})

	metricLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stt_latency_ms",
		Help:    "Provider round trip (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})
)
