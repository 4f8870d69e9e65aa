// Package depcheck reports whether the external tools SafeSound relies on
// are installed.
package depcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/soypete/safesound/pkg/config"
	"github.com/soypete/safesound/pkg/logging"
	"github.com/soypete/safesound/pkg/platform"
	"github.com/soypete/safesound/pkg/stt"
)

// CheckResult represents the result of a dependency check
type CheckResult struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Found    bool   `json:"found"`
	Path     string `json:"path,omitempty"`
	Version  string `json:"version,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Checker validates dependencies before serving requests
type Checker struct {
	config     config.WhisperConfig
	httpClient *http.Client
}

// NewChecker creates a new dependency checker
func NewChecker(cfg config.WhisperConfig) *Checker {
	return &Checker{
		config:     cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// CheckAll validates all dependencies. The error lists missing required
// dependencies; results are always returned.
func (c *Checker) CheckAll(ctx context.Context) ([]CheckResult, error) {
	var results []CheckResult

	if c.config.Backend == "server" {
		results = append(results, c.checkWhisperServer(ctx))
	} else {
		results = append(results, c.checkWhisperCLI())
		results = append(results, c.checkModels())
	}

	results = append(results, c.checkFFmpeg(ctx))
	results = append(results, c.checkClipboard())

	var failures []CheckResult
	for _, result := range results {
		if result.Required && !result.Found {
			failures = append(failures, result)
		}
	}

	if len(failures) > 0 {
		return results, formatErrors(failures)
	}

	return results, nil
}

// checkWhisperServer checks if the whisper.cpp server answers /health
func (c *Checker) checkWhisperServer(ctx context.Context) CheckResult {
	serverURL := c.config.ServerURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return CheckResult{Name: "whisper-server", Required: true, Error: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CheckResult{
			Name:     "whisper-server",
			Required: true,
			Found:    false,
			Error:    fmt.Sprintf("whisper-server not reachable at %s", serverURL),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{
			Name:     "whisper-server",
			Required: true,
			Found:    false,
			Error:    fmt.Sprintf("whisper-server returned status %d at %s", resp.StatusCode, serverURL),
		}
	}

	return CheckResult{
		Name:     "whisper-server",
		Required: true,
		Found:    true,
		Path:     serverURL,
		Version:  "HTTP API",
	}
}

// checkWhisperCLI checks if the whisper.cpp binary is available
func (c *Checker) checkWhisperCLI() CheckResult {
	path, err := exec.LookPath(c.config.BinaryPath)
	if err != nil {
		return CheckResult{
			Name:     "whisper-cli",
			Required: true,
			Found:    false,
			Error:    fmt.Sprintf("%s not found. Build whisper.cpp and put whisper-cli in PATH.", c.config.BinaryPath),
		}
	}

	return CheckResult{
		Name:     "whisper-cli",
		Required: true,
		Found:    true,
		Path:     path,
	}
}

// checkModels checks that at least one ggml model is downloaded
func (c *Checker) checkModels() CheckResult {
	dir := logging.ExpandHome(c.config.ModelsDir)

	var found []string
	for _, model := range stt.Models {
		if isFile(filepath.Join(dir, "ggml-"+model+".bin")) {
			found = append(found, model)
		}
	}

	if len(found) == 0 {
		return CheckResult{
			Name:     "Whisper models",
			Required: true,
			Found:    false,
			Path:     dir,
			Error:    fmt.Sprintf("no ggml-<model>.bin files in %s", dir),
		}
	}

	return CheckResult{
		Name:     "Whisper models",
		Required: true,
		Found:    true,
		Path:     dir,
		Version:  strings.Join(found, ", "),
	}
}

// checkFFmpeg checks if ffmpeg is available for non-WAV uploads
func (c *Checker) checkFFmpeg(ctx context.Context) CheckResult {
	path, err := exec.LookPath(c.config.FFmpegPath)
	if err != nil {
		return CheckResult{
			Name:     "FFmpeg",
			Required: false,
			Found:    false,
			Error:    "ffmpeg not found (needed for mp3, m4a and ogg uploads): " + platform.InstallHint(platform.Current(), "ffmpeg"),
		}
	}

	cmd := exec.CommandContext(ctx, path, "-version")
	output, _ := cmd.CombinedOutput()
	version := strings.TrimSpace(strings.Split(string(output), "\n")[0])

	return CheckResult{
		Name:     "FFmpeg",
		Required: false,
		Found:    true,
		Path:     path,
		Version:  version,
	}
}

// checkClipboard checks for a system clipboard utility
func (c *Checker) checkClipboard() CheckResult {
	if clipboard.Unsupported {
		return CheckResult{
			Name:     "Clipboard",
			Required: false,
			Found:    false,
			Error:    "no clipboard utility found: " + platform.ClipboardHint(platform.Current()),
		}
	}
	return CheckResult{Name: "Clipboard", Required: false, Found: true}
}

// formatErrors formats dependency check errors
func formatErrors(failures []CheckResult) error {
	var problems []string
	for _, failure := range failures {
		problems = append(problems, fmt.Sprintf("%s: %s", failure.Name, failure.Error))
	}
	return errors.New("dependency check failed: " + strings.Join(problems, "; "))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
