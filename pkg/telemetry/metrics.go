// Package telemetry holds the process-wide Prometheus collectors. Metrics are
// registered on the default registry and served by promhttp at /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamsStarted counts chat streams that began emitting frames,
	// labeled by the backend that served them.
	StreamsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_streams_started_total",
		Help: "Chat streams started, by backend (live or fallback).",
	}, []string{"backend"})

	// StreamsCompleted counts streams that reached the done frame.
	StreamsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_streams_completed_total",
		Help: "Chat streams that completed successfully.",
	})

	// StreamsFailed counts streams that ended with an in-band error frame.
	StreamsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_streams_failed_total",
		Help: "Chat streams that ended with an error frame.",
	})

	// FramesWritten counts wire frames emitted across all streams.
	FramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_frames_written_total",
		Help: "Stream frames written to clients.",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatrelay_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request durations labeled by the mux route template, so
// /threads/{id} aggregates as one series instead of one per thread.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		requestDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
