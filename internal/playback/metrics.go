package playback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_voices_started_total",
		Help: "Voices started, including resumes",
	})

	metricCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_units_completed_total",
		Help: "Units that played to the end",
	})

	metricPreemptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_preemptions_total",
		Help: "Paused units discarded in favour of queued audio",
	})

	metricResumes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_resumes_total",
		Help: "Paused units resumed at their offset",
	})

	metricRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_units_rejected_total",
		Help: "Units dropped before or during playback",
	}, []string{"reason"}) // missing_position, decode, routing

	metricStaleEnds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_stale_end_notifications_total",
		Help: "Ended callbacks ignored because the voice was superseded",
	})

	metricBootstrap = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_bootstrap_total",
		Help: "Default audio fetched for the first speech event",
	})

	gaugeQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playback_queue_depth",
		Help: "Units waiting to play",
	})

	gaugePanners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playback_panners",
		Help: "Spatial panners created",
	})
)
