package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safesound_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	TranscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safesound_transcriptions_total",
			Help: "Transcriptions by task, model, source and outcome",
		},
		[]string{"task", "model", "source", "status"},
	)

	TranscriptionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "safesound_transcription_duration_seconds",
			Help:    "Time spent in the speech-to-text backend",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"backend", "model"},
	)

	MicBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "safesound_mic_bytes_total",
			Help: "PCM bytes received from browser microphones",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal, TranscriptionsTotal, TranscriptionDuration, MicBytesTotal)
}

// ObserveTranscription records the outcome and latency of one backend call.
func ObserveTranscription(backend, model, task, source, status string, elapsed time.Duration) {
	TranscriptionsTotal.WithLabelValues(task, model, source, status).Inc()
	if status != "cached" {
		TranscriptionDuration.WithLabelValues(backend, model).Observe(elapsed.Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware counts requests by method, route pattern and status.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	})
}
