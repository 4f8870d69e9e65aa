// Package httpbridge serves the SafeSound web UI and its JSON API.
package httpbridge

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soypete/safesound/pkg/depcheck"
	"github.com/soypete/safesound/pkg/metrics"
	"github.com/soypete/safesound/pkg/session"
	"github.com/soypete/safesound/pkg/share"
)

//go:embed templates/*.html
var templatesFS embed.FS

// HealthPath is the readiness endpoint the launcher polls.
const HealthPath = "/_stcore/health"

// Server represents the HTTP server
type Server struct {
	appCtx    *AppContext
	logger    *slog.Logger
	mux       *http.ServeMux
	templates *template.Template
	sessions  *session.Store
	maxUpload int64
	theme     string

	uploadDir string
	// ownsUploadDir is set when uploadDir is a temp dir created by NewServer.
	ownsUploadDir bool

	ready atomic.Bool

	depsMu sync.RWMutex
	deps   []depcheck.CheckResult

	// copyText writes to the host clipboard.
	copyText func(string) error
}

// Options configures the HTTP server.
type Options struct {
	// UploadDir stores uploaded audio. It is created if missing.
	UploadDir string
	// Theme is "light" or "dark".
	Theme string
}

// NewServer creates a new HTTP server. It reports unhealthy until MarkReady.
func NewServer(appCtx *AppContext, opts Options) (*Server, error) {
	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	ownsUploadDir := false
	if opts.UploadDir == "" {
		dir, err := os.MkdirTemp("", "safesound-uploads-")
		if err != nil {
			return nil, err
		}
		opts.UploadDir = dir
		ownsUploadDir = true
	} else if err := os.MkdirAll(opts.UploadDir, 0700); err != nil {
		return nil, err
	}
	if opts.Theme == "" {
		opts.Theme = "light"
	}

	maxMB := appCtx.Config.Upload.MaxMB
	if maxMB <= 0 {
		maxMB = 200
	}

	server := &Server{
		appCtx:        appCtx,
		logger:        appCtx.Logger,
		mux:           http.NewServeMux(),
		templates:     templates,
		sessions:      session.NewStore(),
		uploadDir:     opts.UploadDir,
		ownsUploadDir: ownsUploadDir,
		maxUpload:     int64(maxMB) << 20,
		theme:         opts.Theme,
		copyText:      share.CopyToClipboard,
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET "+HealthPath, s.handleHealth)

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/audio", s.handleAudio)
	s.mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	s.mux.HandleFunc("GET /api/transcription.txt", s.handleTranscriptionText)
	s.mux.HandleFunc("GET /api/qr.png", s.handleQR)
	s.mux.HandleFunc("POST /api/clipboard", s.handleClipboard)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)

	s.mux.HandleFunc("GET /ws/mic", s.handleMic)

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the routed handler wrapped with request metrics.
func (s *Server) Handler() http.Handler {
	return metrics.Middleware(s.mux)
}

// CheckDependencies runs the dependency checker and keeps the results for
// the status endpoint. Missing dependencies are logged, never fatal.
func (s *Server) CheckDependencies(ctx context.Context) {
	results, err := s.appCtx.Checker.CheckAll(ctx)
	for _, r := range results {
		if r.Found {
			s.logger.Debug("Dependency found", "name", r.Name, "path", r.Path, "version", r.Version)
		} else {
			s.logger.Warn("Dependency missing", "name", r.Name, "required", r.Required, "error", r.Error)
		}
	}
	if err != nil {
		s.logger.Warn("Some transcriptions will fail until dependencies are installed", "error", err)
	}

	s.depsMu.Lock()
	s.deps = results
	s.depsMu.Unlock()
}

func (s *Server) dependencies() []depcheck.CheckResult {
	s.depsMu.RLock()
	defer s.depsMu.RUnlock()
	return s.deps
}

// MarkReady flips the health endpoint to 200.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Ready reports whether the server answers health checks with 200.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepSessions(ctx, time.Minute, 2*time.Hour)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cleanup()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.cleanup()
	return err
}

func (s *Server) sweepSessions(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range s.sessions.Sweep(maxIdle) {
				s.removeUpload(st.TakeUpload())
			}
		}
	}
}

func (s *Server) removeUpload(up *session.Upload) {
	if up == nil {
		return
	}
	if err := os.Remove(up.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove upload", "path", up.Path, "error", err)
	}
}

func (s *Server) cleanup() {
	if s.appCtx.Config.Debug.KeepTempFiles {
		return
	}
	if !s.ownsUploadDir {
		for _, st := range s.sessions.Drain() {
			s.removeUpload(st.TakeUpload())
		}
		return
	}
	if err := os.RemoveAll(s.uploadDir); err != nil {
		s.logger.Warn("Failed to remove upload directory", "path", s.uploadDir, "error", err)
	}
}
