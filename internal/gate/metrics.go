package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gate_frames_total",
		Help: "Frames classified",
	})

	metricStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gate_starts_total",
		Help: "Speech start events",
	})

	metricEnds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_ends_total",
		Help: "Speech end events by kind",
	}, []string{"kind"}) // utterance, misfire

	metricFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gate_rms_fallbacks_total",
		Help: "Frames classified by RMS because webrtcvad rejected them",
	})
)
