package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})

	metricLatencyMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_ms",
		Help:    "HTTP handler latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(5, 2, 14),
	}, []string{"route"})
)
