package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPRequestsTotal(t *testing.T) {
	// Reset counter before test
	HTTPRequestsTotal.Reset()

	// Increment counter
	HTTPRequestsTotal.WithLabelValues("GET", "/api/status", "200").Inc()
	HTTPRequestsTotal.WithLabelValues("GET", "/api/status", "200").Inc()
	HTTPRequestsTotal.WithLabelValues("POST", "/api/transcribe", "400").Inc()

	// Verify counts
	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/status", "200"))
	if count != 2 {
		t.Errorf("Expected 2 GET requests, got %f", count)
	}

	count = testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/transcribe", "400"))
	if count != 1 {
		t.Errorf("Expected 1 POST request, got %f", count)
	}
}

func TestMiddleware(t *testing.T) {
	HTTPRequestsTotal.Reset()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	handler := Middleware(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/history", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /api/history", "503"))
	if count != 1 {
		t.Errorf("Expected 1 history request, got %f", count)
	}
	count = testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	if count != 1 {
		t.Errorf("Expected 1 unmatched request, got %f", count)
	}
}

func TestObserveTranscription(t *testing.T) {
	TranscriptionsTotal.Reset()
	TranscriptionDuration.Reset()

	ObserveTranscription("whisper-cli", "base", "transcribe", "upload", "ok", 2*time.Second)
	ObserveTranscription("whisper-cli", "base", "transcribe", "upload", "cached", 0)

	if got := testutil.ToFloat64(TranscriptionsTotal.WithLabelValues("transcribe", "base", "upload", "ok")); got != 1 {
		t.Errorf("Expected 1 ok transcription, got %f", got)
	}
	if got := testutil.ToFloat64(TranscriptionsTotal.WithLabelValues("transcribe", "base", "upload", "cached")); got != 1 {
		t.Errorf("Expected 1 cached transcription, got %f", got)
	}
	if got := testutil.CollectAndCount(TranscriptionDuration); got != 1 {
		t.Errorf("Expected 1 histogram series, got %d", got)
	}
}
