package audiodev

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "audiodev_input_frames_dropped_total",
	Help: "Microphone frames dropped because the gate fell behind",
})
