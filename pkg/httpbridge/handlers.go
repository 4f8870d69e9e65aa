package httpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soypete/safesound/pkg/app"
	"github.com/soypete/safesound/pkg/audio"
	"github.com/soypete/safesound/pkg/session"
	"github.com/soypete/safesound/pkg/share"
	"github.com/soypete/safesound/pkg/stt"
	"github.com/soypete/safesound/pkg/transcribe"
)

type indexData struct {
	App          *app.App
	DefaultModel string
	Accept       string
	Theme        string
	Backend      string
}

// handleIndex serves the main page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.sessions.Get(w, r)

	accept := make([]string, 0, len(s.appCtx.App.UploadTypes))
	for _, t := range s.appCtx.App.UploadTypes {
		accept = append(accept, "."+t)
	}

	data := indexData{
		App:          s.appCtx.App,
		DefaultModel: s.appCtx.App.DefaultModel(),
		Accept:       strings.Join(accept, ","),
		Theme:        s.theme,
		Backend:      s.appCtx.Transcriber.Name(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("Failed to render page", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleHealth answers the launcher's readiness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "warming up")
		return
	}
	io.WriteString(w, "ok")
}

type statusChecker interface {
	Status(ctx context.Context) (*stt.StatusResponse, error)
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"ready":        s.Ready(),
		"backend":      s.appCtx.Transcriber.Name(),
		"history":      s.appCtx.History != nil,
		"sessions":     s.sessions.Len(),
		"dependencies": s.dependencies(),
	}

	if checker, ok := s.appCtx.Transcriber.(statusChecker); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		// Status carries its own error message
		status, _ := checker.Status(ctx)
		resp["whisper"] = status
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleUpload handles POST /api/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondError(w, status, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to get audio file: %v", err))
		return
	}
	defer file.Close()

	if !s.appCtx.App.AcceptsFile(header.Filename) {
		respondError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("Unsupported file type. Accepted: %s", strings.Join(s.appCtx.App.UploadTypes, ", ")))
		return
	}

	name := filepath.Base(header.Filename)
	path := filepath.Join(s.uploadDir, sess.ID+"-"+uuid.NewString()+strings.ToLower(filepath.Ext(name)))

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store upload: %v", err))
		return
	}
	size, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store upload: %v", err))
		return
	}

	s.removeUpload(sess.SetUpload(&session.Upload{Path: path, Name: name}))
	s.logger.Info("Audio uploaded", "session", sess.ID, "name", name, "bytes", size)

	resp := map[string]interface{}{
		"name": name,
		"size": size,
	}
	if d, err := audio.Duration(path); err == nil {
		resp["duration_seconds"] = d.Seconds()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleAudio streams the session's uploaded audio to the player
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(w, r)
	up := sess.CurrentUpload()
	if up == nil {
		respondError(w, http.StatusNotFound, "No audio uploaded")
		return
	}

	f, err := os.Open(up.Path)
	if err != nil {
		respondError(w, http.StatusNotFound, "Uploaded audio is no longer available")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.ServeContent(w, r, up.Name, info.ModTime(), f)
}

// handleTranscribe handles POST /api/transcribe
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(w, r)
	def := s.appCtx.App

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}

	model := r.FormValue("model")
	if model == "" {
		model = def.DefaultModel()
	}
	if !def.HasModel(model) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown model %q", model))
		return
	}

	language := r.FormValue("language")
	if !def.HasLanguageCode(language) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown language %q", language))
		return
	}

	task, err := stt.ParseTask(r.FormValue("task"))
	if err != nil || !def.HasTask(string(task)) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown task %q", r.FormValue("task")))
		return
	}

	source := transcribe.Source(r.FormValue("input"))
	if source == "" {
		source = transcribe.SourceUpload
	}

	result, err := s.appCtx.Service.Run(r.Context(), sess, transcribe.Request{
		Source:   source,
		Model:    model,
		Language: language,
		Task:     task,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, transcribe.ErrNoInput) || errors.Is(err, transcribe.ErrNoMicAudio) {
			status = http.StatusBadRequest
		} else {
			s.logger.Error("Transcription failed", "session", sess.ID, "source", source, "error", err)
		}
		respondError(w, status, transcribe.Message(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"text":    result.Text,
		"cached":  result.Cached,
		"stats":   result.Stats,
		"display": result.Stats.Display(),
	})
}

// handleTranscriptionText downloads the last transcription
func (s *Server) handleTranscriptionText(w http.ResponseWriter, r *http.Request) {
	text, _ := s.sessions.Get(w, r).Result()
	if text == "" {
		respondError(w, http.StatusNotFound, "No transcription yet")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", share.TextFileName))
	io.WriteString(w, text)
}

// handleQR renders the last transcription as a QR code
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	text, _ := s.sessions.Get(w, r).Result()

	png, err := share.QRPNG(text)
	switch {
	case errors.Is(err, share.ErrEmpty):
		respondError(w, http.StatusNotFound, "No transcription yet")
		return
	case errors.Is(err, share.ErrTooLong):
		respondError(w, http.StatusUnprocessableEntity, "Transcription is too long for a QR code")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", share.QRFileName))
	}
	w.Write(png)
}

// handleClipboard copies the last transcription to the host clipboard
func (s *Server) handleClipboard(w http.ResponseWriter, r *http.Request) {
	text, _ := s.sessions.Get(w, r).Result()

	err := s.copyText(text)
	switch {
	case errors.Is(err, share.ErrEmpty):
		respondError(w, http.StatusNotFound, "No transcription yet")
	case errors.Is(err, share.ErrClipboardUnsupported):
		respondError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]bool{"copied": true})
	}
}

type historyItem struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	FileName        string    `json:"file_name,omitempty"`
	Model           string    `json:"model"`
	Language        string    `json:"language"`
	Task            string    `json:"task"`
	Text            string    `json:"text"`
	DurationSeconds string    `json:"duration_seconds"`
	WordCount       int       `json:"word_count"`
	SpeakingRate    string    `json:"speaking_rate"`
	CreatedAt       time.Time `json:"created_at"`
}

// handleHistory handles GET /api/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.appCtx.History == nil {
		respondError(w, http.StatusNotFound, "History is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 100)
	}

	rows, err := s.appCtx.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list history", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]historyItem, 0, len(rows))
	for _, t := range rows {
		items = append(items, historyItem{
			ID:              t.ID,
			Source:          t.Source,
			FileName:        t.FileName,
			Model:           t.Model,
			Language:        t.Language,
			Task:            t.Task,
			Text:            t.Text,
			DurationSeconds: t.DurationSeconds.StringFixed(2),
			WordCount:       t.WordCount,
			SpeakingRate:    t.SpeakingRate.StringFixed(1),
			CreatedAt:       t.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
