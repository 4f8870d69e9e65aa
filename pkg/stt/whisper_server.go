package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// WhisperServer is a whisper.cpp HTTP server client. The server decides the
// loaded model, so Options.Model is informational only.
type WhisperServer struct {
	baseURL    string
	httpClient *http.Client
}

// StatusResponse represents whisper.cpp server health status
type StatusResponse struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// NewWhisperServer creates a new whisper.cpp server client
func NewWhisperServer(baseURL string) *WhisperServer {
	return &WhisperServer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute, // Long recordings take a while
		},
	}
}

// Name identifies the backend in logs and metrics.
func (c *WhisperServer) Name() string {
	return "whisper-server"
}

// Transcribe sends audio to whisper.cpp for transcription
func (c *WhisperServer) Transcribe(ctx context.Context, audioPath string, opts Options) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
		"language":        "auto",
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Task == TaskTranslate {
		fields["translate"] = "true"
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inference", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper.cpp returned status %d: %s", resp.StatusCode, string(respBody))
	}

	// whisper.cpp returns: {"text": "transcribed text"}
	var whisperResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &whisperResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return cleanTranscription(whisperResp.Text), nil
}

// Status checks if whisper.cpp server is running
func (c *WhisperServer) Status(ctx context.Context) (*StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return &StatusResponse{Error: fmt.Sprintf("failed to create request: %v", err)}, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &StatusResponse{Error: fmt.Sprintf("failed to connect: %v", err)}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return &StatusResponse{Running: true}, nil
	}

	return &StatusResponse{
		Error: fmt.Sprintf("unexpected status: %d", resp.StatusCode),
	}, nil
}
