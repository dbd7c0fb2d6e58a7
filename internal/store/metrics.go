package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricResponsesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_responses_saved_total",
		Help: "Synthesized responses written to disk",
	})

	metricResponsesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_responses_pruned_total",
		Help: "Response files removed by retention",
	})
)
