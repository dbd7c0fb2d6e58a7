package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_events_published_total",
		Help: "Events fanned out to feed subscribers",
	})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_subscribers_dropped_total",
		Help: "Subscribers disconnected for falling behind",
	})

	gaugeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_subscribers",
		Help: "Connected feed subscribers",
	})
)
