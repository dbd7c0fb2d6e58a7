package tts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_requests_total",
		Help: "Synthesis requests by voice and result",
	}, []string{"voice", "result"}) // ok, error, http_error, empty

	metricHeadersMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_response_headers_ms",
		Help:    "Time until the provider answered with headers",
		Buckets: prometheus.ExponentialBuckets(20, 1.6, 10),
	})

	metricSynthesisMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_synthesis_ms",
		Help:    "Time to receive the full reply audio",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})

	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_audio_bytes_total",
		Help: "Synthesized audio bytes received",
	})

	metricTextChars = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_text_chars_total",
		Help: "Characters sent for synthesis, the unit ElevenLabs bills by",
	})
)
