// Package telemetry exposes prometheus collectors for the discussion
// engine and a request-counting HTTP middleware.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsRun counts persona turns by trigger kind.
	TurnsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_turns_total",
		Help: "Persona turns run, by trigger.",
	}, []string{"trigger"})

	// MessagesPersisted counts messages written to the thread store.
	MessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_messages_persisted_total",
		Help: "Messages persisted, by author kind.",
	}, []string{"kind"})

	// VotesToggled counts engagement ledger transitions.
	VotesToggled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_votes_toggled_total",
		Help: "Vote toggles applied, by direction.",
	}, []string{"vote"})

	// GenerationFallbacks counts turns that fell back to templated content.
	GenerationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_generation_fallbacks_total",
		Help: "Turns completed with fallback content.",
	})

	// TurnDuration observes per-turn wall time including pacing.
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roundtable_turn_duration_seconds",
		Help:    "Wall time per persona turn.",
		Buckets: prometheus.DefBuckets,
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_http_requests_total",
		Help: "HTTP requests, by method and status.",
	}, []string{"method", "status"})

	httpDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roundtable_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the recorder SSE-compatible.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and latency for every route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpDuration.Observe(time.Since(start).Seconds())
	})
}
