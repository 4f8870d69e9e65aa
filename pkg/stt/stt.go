// Package stt provides speech-to-text functionality using whisper.cpp
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/soypete/safesound/pkg/config"
)

// Task selects between same-language transcription and translation to English.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// ParseTask validates a task name. An empty name means transcribe.
func ParseTask(s string) (Task, error) {
	switch Task(s) {
	case "", TaskTranscribe:
		return TaskTranscribe, nil
	case TaskTranslate:
		return TaskTranslate, nil
	default:
		return "", fmt.Errorf("unknown task %q", s)
	}
}

// Models are the whisper model sizes offered to users.
var Models = []string{"tiny", "base", "small", "medium", "large"}

var (
	// ErrModelNotFound is returned when the requested model file is missing.
	ErrModelNotFound = errors.New("whisper model not found")
	// ErrBinaryNotFound is returned when the whisper.cpp binary is not installed.
	ErrBinaryNotFound = errors.New("whisper binary not found")
)

// Options controls a single transcription.
type Options struct {
	Model string
	// Language is a whisper language code; empty means auto-detect.
	Language string
	Task     Task
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (string, error)
	Name() string
}

// New builds the transcriber selected in the whisper config section.
func New(cfg config.WhisperConfig) (Transcriber, error) {
	switch cfg.Backend {
	case "server":
		return NewWhisperServer(cfg.ServerURL), nil
	case "cli", "":
		client, err := NewWhisperClient(cfg.BinaryPath, cfg.ModelsDir)
		if err != nil {
			return nil, err
		}
		if cfg.Threads > 0 {
			client.SetThreads(cfg.Threads)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported whisper backend: %s", cfg.Backend)
	}
}
