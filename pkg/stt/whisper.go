package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/soypete/safesound/pkg/logging"
)

// WhisperClient provides speech-to-text using the whisper.cpp command line tool
type WhisperClient struct {
	binaryPath string // Path to whisper.cpp binary
	modelsDir  string // Directory holding ggml-<model>.bin files
	threads    int    // Number of threads to use
}

// NewWhisperClient creates a new WhisperClient. binaryPath may be a bare
// command name; it is resolved through $PATH on every Transcribe so a
// missing binary is reported per request instead of at startup.
func NewWhisperClient(binaryPath, modelsDir string) (*WhisperClient, error) {
	if binaryPath == "" {
		return nil, errors.New("whisper binary path is empty")
	}

	return &WhisperClient{
		binaryPath: binaryPath,
		modelsDir:  logging.ExpandHome(modelsDir),
		threads:    4,
	}, nil
}

// resolveBinary finds the whisper.cpp binary or explains how to install it.
func (w *WhisperClient) resolveBinary() (string, error) {
	path, err := exec.LookPath(w.binaryPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s (build whisper.cpp and put whisper-cli in PATH, or set whisper.binary_path): %v",
			ErrBinaryNotFound, w.binaryPath, err)
	}
	return path, nil
}

// Name identifies the backend in logs and metrics.
func (w *WhisperClient) Name() string {
	return "whisper-cli"
}

// SetThreads sets the number of threads to use
func (w *WhisperClient) SetThreads(threads int) {
	w.threads = threads
}

// ModelPath returns the model file for a model size.
func (w *WhisperClient) ModelPath(model string) string {
	return filepath.Join(w.modelsDir, "ggml-"+model+".bin")
}

// Transcribe transcribes an audio file and returns the text
func (w *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts Options) (string, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return "", fmt.Errorf("audio file not found: %s", audioPath)
	}

	binary, err := w.resolveBinary()
	if err != nil {
		return "", err
	}

	modelPath := w.ModelPath(opts.Model)
	if _, err := os.Stat(modelPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}

	language := opts.Language
	if language == "" {
		language = "auto"
	}

	// whisper.cpp writes <output base>.txt; each call gets its own directory
	// so runs on the same audio file never read each other's output.
	outputDir, err := os.MkdirTemp("", "safesound-whisper-")
	if err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	defer os.RemoveAll(outputDir)
	outputBase := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath)))
	outputFile := outputBase + ".txt"

	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-l", language,
		"-t", strconv.Itoa(w.threads),
		"-nt",   // No timestamps
		"-otxt", // Output as text
		"-of", outputBase,
	}
	if opts.Task == TaskTranslate {
		args = append(args, "-tr")
	}

	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w\nStderr: %s", err, stderr.String())
	}

	text, err := os.ReadFile(outputFile)
	if err != nil {
		// If file doesn't exist, try to parse stdout
		output := stdout.String()
		if output != "" {
			return cleanTranscription(output), nil
		}
		return "", fmt.Errorf("failed to read transcription: %w", err)
	}

	return cleanTranscription(string(text)), nil
}

// cleanTranscription removes extra whitespace and formatting from whisper output
func cleanTranscription(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// AvailableModels lists the model sizes whose files are present.
func (w *WhisperClient) AvailableModels() []string {
	var found []string
	for _, model := range Models {
		if _, err := os.Stat(w.ModelPath(model)); err == nil {
			found = append(found, model)
		}
	}
	return found
}
