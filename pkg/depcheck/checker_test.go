package depcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypete/safesound/pkg/config"
)

func find(results []CheckResult, name string) CheckResult {
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	return CheckResult{}
}

func TestCheckAll_ServerBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewChecker(config.WhisperConfig{Backend: "server", ServerURL: server.URL, FFmpegPath: "ffmpeg"})
	results, err := checker.CheckAll(context.Background())
	require.NoError(t, err)

	ws := find(results, "whisper-server")
	assert.True(t, ws.Found)
	assert.True(t, ws.Required)
	assert.Equal(t, server.URL, ws.Path)
	assert.False(t, find(results, "FFmpeg").Required)
}

func TestCheckAll_ServerUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	checker := NewChecker(config.WhisperConfig{Backend: "server", ServerURL: server.URL, FFmpegPath: "ffmpeg"})
	results, err := checker.CheckAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whisper-server")
	assert.Contains(t, find(results, "whisper-server").Error, "503")
}

func TestCheckAll_CLIBackend(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "whisper-cli")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	models := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(models, 0755))

	checker := NewChecker(config.WhisperConfig{
		Backend:    "cli",
		BinaryPath: binary,
		ModelsDir:  models,
		FFmpegPath: filepath.Join(dir, "no-ffmpeg"),
	})

	results, err := checker.CheckAll(context.Background())
	require.Error(t, err, "no models downloaded yet")
	assert.True(t, find(results, "whisper-cli").Found)
	assert.False(t, find(results, "Whisper models").Found)
	assert.False(t, find(results, "FFmpeg").Found)

	require.NoError(t, os.WriteFile(filepath.Join(models, "ggml-base.bin"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(models, "ggml-small.bin"), []byte("x"), 0644))

	results, err = checker.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "base, small", find(results, "Whisper models").Version)
}

func TestCheckAll_MissingBinary(t *testing.T) {
	checker := NewChecker(config.WhisperConfig{
		Backend:    "cli",
		BinaryPath: "/nonexistent/whisper-cli",
		ModelsDir:  t.TempDir(),
		FFmpegPath: "ffmpeg",
	})

	results, err := checker.CheckAll(context.Background())
	require.Error(t, err)
	assert.False(t, find(results, "whisper-cli").Found)
	assert.Contains(t, err.Error(), "whisper-cli")
}
