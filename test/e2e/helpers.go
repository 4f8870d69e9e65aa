package e2e

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// SkipUnlessE2E skips the test unless RUN_E2E_TESTS environment variable is set.
// E2E tests build the binaries and should only run when explicitly enabled:
// RUN_E2E_TESTS=1 go test ./test/e2e
func SkipUnlessE2E(t *testing.T) {
	if os.Getenv("RUN_E2E_TESTS") == "" {
		t.Skip("Skipping E2E test - set RUN_E2E_TESTS=1 to run")
	}
}

// TestEnvironment holds a work directory with built binaries and config.
type TestEnvironment struct {
	WorkDir string
	BinDir  string
	Port    int
	LogFile string
	Whisper *httptest.Server
	T       *testing.T
}

// SetupTestEnvironment builds both binaries into one directory and writes a
// config that points at a fake whisper.cpp server.
func SetupTestEnvironment(t *testing.T, transcript string) *TestEnvironment {
	workDir := t.TempDir()
	binDir := t.TempDir()

	buildBinary(t, binDir, "safesound")
	buildBinary(t, binDir, "safesound-server")

	whisper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/inference":
			json.NewEncoder(w).Encode(map[string]string{"text": transcript})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(whisper.Close)

	env := &TestEnvironment{
		WorkDir: workDir,
		BinDir:  binDir,
		Port:    findAvailablePort(t),
		LogFile: filepath.Join(workDir, "safesound_debug.log"),
		Whisper: whisper,
		T:       t,
	}
	env.writeConfig()
	env.copyAppFile()
	return env
}

func (e *TestEnvironment) writeConfig() {
	cfg := map[string]interface{}{
		"launcher": map[string]interface{}{
			"host":             "127.0.0.1",
			"port":             e.Port,
			"timeout_seconds":  20,
			"poll_interval_ms": 200,
			"browser_delay_ms": 100,
			"log_file":         e.LogFile,
		},
		"whisper": map[string]interface{}{
			"backend":    "server",
			"server_url": e.Whisper.URL,
		},
		"history": map[string]interface{}{
			"enabled": true,
			"driver":  "sqlite",
			"path":    filepath.Join(e.WorkDir, "history.db"),
		},
		"debug": map[string]interface{}{
			"log_level": "debug",
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		e.T.Fatalf("Failed to marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(e.WorkDir, ".safesound.json"), data, 0644); err != nil {
		e.T.Fatalf("Failed to write config: %v", err)
	}
}

func (e *TestEnvironment) copyAppFile() {
	data, err := os.ReadFile(filepath.Join("..", "..", "safesound.yaml"))
	if err != nil {
		e.T.Fatalf("Failed to read app file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(e.WorkDir, "safesound.yaml"), data, 0644); err != nil {
		e.T.Fatalf("Failed to write app file: %v", err)
	}
}

// Command returns a command for a built binary running in the work
// directory. PATH only holds the built binaries so no real browser opens.
func (e *TestEnvironment) Command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(filepath.Join(e.BinDir, name), args...)
	cmd.Dir = e.WorkDir
	cmd.Env = append(os.Environ(), "PATH="+e.BinDir, "HOME="+e.WorkDir)
	return cmd
}

// URL returns the UI server base URL.
func (e *TestEnvironment) URL() string {
	return "http://127.0.0.1:" + strconv.Itoa(e.Port)
}

func buildBinary(t *testing.T, dir, name string) {
	projectRoot, err := filepath.Abs("../..")
	if err != nil {
		t.Fatalf("Failed to get project root: %v", err)
	}

	cmd := exec.Command("go", "build", "-o", filepath.Join(dir, name), "./cmd/"+name)
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to build %s: %v\nOutput: %s", name, err, string(output))
	}
}

// waitForHealthy waits for the health endpoint to return 200
func waitForHealthy(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/_stcore/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server did not become ready within %v", timeout)
}

// findAvailablePort finds an available port for testing
func findAvailablePort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
