package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.HandleReady)
	mux.HandleFunc("/healthz/deps", method(http.MethodGet, h.HandleDeps))
	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/transcribe", instrument("transcribe", method(http.MethodPost, h.HandleTranscribe)))
	mux.Handle("/query-llama", instrument("query-llama", method(http.MethodPost, h.HandleQuery)))
	mux.Handle("/process-text", instrument("process-text", method(http.MethodPost, h.HandleProcessText)))
	mux.Handle("/last-audio", instrument("last-audio", method(http.MethodGet, h.HandleLastAudio)))
	mux.Handle("/respond", instrument("respond", method(http.MethodPost, h.HandleRespond)))
	mux.Handle("/personalities", instrument("personalities", method(http.MethodGet, h.HandlePersonalities)))
	mux.Handle("/events", instrument("events", method(http.MethodGet, h.HandleListEvents)))
	if h.feed != nil {
		mux.Handle("/ws/feed", h.feed)
	}

	return mux
}

func method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		metricRequests.WithLabelValues(route, http.StatusText(rec.status)).Inc()
		metricLatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
