// Package transcribe runs the upload or microphone audio of a session through
// conversion, the speech-to-text backend and the history cache.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/soypete/safesound/pkg/audio"
	"github.com/soypete/safesound/pkg/database"
	"github.com/soypete/safesound/pkg/metrics"
	"github.com/soypete/safesound/pkg/session"
	"github.com/soypete/safesound/pkg/stt"
)

// Source selects where the audio comes from.
type Source string

const (
	SourceUpload     Source = "upload"
	SourceMicrophone Source = "microphone"
)

var (
	// ErrNoMicAudio means the microphone source was chosen with an empty buffer.
	ErrNoMicAudio = errors.New("no microphone audio captured")
	// ErrNoInput means there is neither an upload nor microphone audio.
	ErrNoInput = errors.New("no audio input")
)

// Message returns the text shown to users for pipeline input errors.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNoMicAudio):
		return "No microphone audio captured yet!"
	case errors.Is(err, ErrNoInput):
		return "Please provide audio input first!"
	default:
		return fmt.Sprintf("An error occurred: %v", err)
	}
}

// History is the transcription cache and log.
type History interface {
	Save(ctx context.Context, t *database.Transcript) error
	FindByHash(ctx context.Context, key database.CacheKey) (*database.Transcript, error)
}

// Request describes one transcription run.
type Request struct {
	Source   Source
	Model    string
	Language string
	Task     stt.Task
}

// Result is a finished transcription.
type Result struct {
	Text   string      `json:"text"`
	Stats  audio.Stats `json:"stats"`
	Cached bool        `json:"cached"`
}

// Options configures a Service.
type Options struct {
	// TempDir holds intermediate WAV files. Empty means os.TempDir.
	TempDir string
	// KeepTempFiles leaves intermediate files on disk for debugging.
	KeepTempFiles bool
}

// Service runs transcriptions.
type Service struct {
	transcriber stt.Transcriber
	converter   *audio.Converter
	history     History
	logger      *slog.Logger
	opts        Options
}

// NewService creates a pipeline. history may be nil to disable caching.
func NewService(t stt.Transcriber, c *audio.Converter, history History, logger *slog.Logger, opts Options) *Service {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Service{
		transcriber: t,
		converter:   c,
		history:     history,
		logger:      logger,
		opts:        opts,
	}
}

// Run transcribes the session's selected audio and stores the result on the
// session. The microphone buffer is cleared by every microphone run.
func (s *Service) Run(ctx context.Context, sess *session.State, req Request) (*Result, error) {
	var temps []string
	defer func() {
		if s.opts.KeepTempFiles {
			return
		}
		for _, p := range temps {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("Failed to remove temp file", "path", p, "error", err)
			}
		}
	}()

	inputPath, fileName, err := s.resolveInput(sess, req.Source, &temps)
	if err != nil {
		return nil, err
	}

	hash, err := HashFile(inputPath)
	if err != nil {
		return nil, err
	}
	key := database.CacheKey{AudioHash: hash, Model: req.Model, Language: req.Language, Task: string(req.Task)}

	if cached := s.lookup(ctx, key); cached != nil {
		result := &Result{
			Text: cached.Text,
			Stats: audio.Stats{
				DurationSeconds: cached.DurationSeconds.InexactFloat64(),
				WordCount:       cached.WordCount,
				SpeakingRate:    cached.SpeakingRate.InexactFloat64(),
			},
			Cached: true,
		}
		sess.SetResult(result.Text, &result.Stats)
		metrics.ObserveTranscription(s.transcriber.Name(), req.Model, string(req.Task), string(req.Source), "cached", 0)
		s.logger.Info("Transcription served from history", "hash", hash, "model", req.Model)
		return result, nil
	}

	wavPath := inputPath
	if audio.NeedsConversion(inputPath) {
		wavPath, err = s.tempFile("16k.wav")
		if err != nil {
			return nil, err
		}
		temps = append(temps, wavPath)
		if err := s.converter.ToWav(ctx, inputPath, wavPath); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	text, err := s.transcriber.Transcribe(ctx, wavPath, stt.Options{
		Model:    req.Model,
		Language: req.Language,
		Task:     req.Task,
	})
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveTranscription(s.transcriber.Name(), req.Model, string(req.Task), string(req.Source), "error", elapsed)
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	metrics.ObserveTranscription(s.transcriber.Name(), req.Model, string(req.Task), string(req.Source), "ok", elapsed)

	duration, err := audio.Duration(wavPath)
	if err != nil {
		s.logger.Warn("Could not read audio duration", "path", wavPath, "error", err)
	}
	stats := audio.ComputeStats(duration, text)

	s.logger.Info("Transcription complete",
		"source", req.Source,
		"model", req.Model,
		"task", req.Task,
		"words", stats.WordCount,
		"elapsed", elapsed.Round(time.Millisecond))

	s.remember(ctx, key, &database.Transcript{
		AudioHash:       hash,
		Source:          string(req.Source),
		FileName:        fileName,
		Model:           req.Model,
		Language:        req.Language,
		Task:            string(req.Task),
		Text:            text,
		DurationSeconds: decimal.NewFromFloat(stats.DurationSeconds).Round(3),
		WordCount:       stats.WordCount,
		SpeakingRate:    decimal.NewFromFloat(stats.SpeakingRate).Round(3),
	})

	sess.SetResult(text, &stats)
	return &Result{Text: text, Stats: stats}, nil
}

func (s *Service) resolveInput(sess *session.State, source Source, temps *[]string) (path, name string, err error) {
	switch source {
	case SourceMicrophone:
		pcm, rate, channels, err := sess.TakePCM()
		if errors.Is(err, session.ErrNoAudio) {
			return "", "", ErrNoMicAudio
		}
		if err != nil {
			return "", "", err
		}
		path, err = s.tempFile("mic.wav")
		if err != nil {
			return "", "", err
		}
		*temps = append(*temps, path)
		if err := audio.WritePCM16WAV(path, pcm, rate, channels); err != nil {
			return "", "", fmt.Errorf("failed to save microphone audio: %w", err)
		}
		return path, "microphone.wav", nil
	case SourceUpload:
		up := sess.CurrentUpload()
		if up == nil {
			return "", "", ErrNoInput
		}
		return up.Path, up.Name, nil
	default:
		return "", "", ErrNoInput
	}
}

func (s *Service) lookup(ctx context.Context, key database.CacheKey) *database.Transcript {
	if s.history == nil {
		return nil
	}
	t, err := s.history.FindByHash(ctx, key)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.Warn("History lookup failed", "error", err)
		}
		return nil
	}
	return t
}

func (s *Service) remember(ctx context.Context, key database.CacheKey, t *database.Transcript) {
	if s.history == nil {
		return
	}
	if err := s.history.Save(ctx, t); err != nil {
		s.logger.Warn("Failed to save transcription history", "hash", key.AudioHash, "error", err)
	}
}

// tempFile reserves a uniquely named file in TempDir so concurrent runs on
// the same audio never share intermediates.
func (s *Service) tempFile(suffix string) (string, error) {
	f, err := os.CreateTemp(s.opts.TempDir, "safesound-*-"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	return name, nil
}
