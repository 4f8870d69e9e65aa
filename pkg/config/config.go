package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the optional configuration file looked up in the current
// directory and then in the home directory.
const FileName = ".safesound.json"

// Config represents the SafeSound configuration
type Config struct {
	Launcher LauncherConfig `json:"launcher"`
	Whisper  WhisperConfig  `json:"whisper"`
	History  HistoryConfig  `json:"history"`
	Upload   UploadConfig   `json:"upload"`
	Debug    DebugConfig    `json:"debug"`
}

// LauncherConfig contains the supervisor settings. The defaults are the
// fixed values the launcher is documented with.
type LauncherConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	HealthPath      string `json:"health_path"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	PollIntervalMS  int    `json:"poll_interval_ms"`
	BrowserDelayMS  int    `json:"browser_delay_ms"`
	ShutdownGraceMS int    `json:"shutdown_grace_ms"`
	ServerBinary    string `json:"server_binary"`
	AppScript       string `json:"app_script"`
	LogFile         string `json:"log_file,omitempty"`
}

// WhisperConfig contains speech-to-text backend settings
type WhisperConfig struct {
	Backend    string `json:"backend"` // "cli" or "server"
	BinaryPath string `json:"binary_path,omitempty"`
	ModelsDir  string `json:"models_dir,omitempty"`
	ServerURL  string `json:"server_url,omitempty"`
	Threads    int    `json:"threads"`
	FFmpegPath string `json:"ffmpeg_path"`
}

// HistoryConfig contains transcription history storage settings
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver"` // "sqlite" or "postgres"
	Path    string `json:"path,omitempty"`
	URL     string `json:"url,omitempty"`
}

// UploadConfig contains upload limits
type UploadConfig struct {
	MaxMB int `json:"max_mb"`
}

// DebugConfig contains debug settings
type DebugConfig struct {
	LogLevel      string `json:"log_level"`
	KeepTempFiles bool   `json:"keep_temp_files"`
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	config := &Config{}
	config.setDefaults()
	return config
}

// LoadDefault attempts to load .safesound.json from the current directory or
// home. Unlike an explicit Load, a missing file is not an error: the launcher
// must start with no setup at all.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(FileName); err == nil {
		return Load(FileName)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homePath := filepath.Join(home, FileName)
		if _, err := os.Stat(homePath); err == nil {
			return Load(homePath)
		}
	}

	return Default(), nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	// Launcher defaults
	if c.Launcher.Host == "" {
		c.Launcher.Host = "localhost"
	}
	if c.Launcher.Port == 0 {
		c.Launcher.Port = 8501
	}
	if c.Launcher.HealthPath == "" {
		c.Launcher.HealthPath = "/_stcore/health"
	}
	if c.Launcher.TimeoutSeconds == 0 {
		c.Launcher.TimeoutSeconds = 30
	}
	if c.Launcher.PollIntervalMS == 0 {
		c.Launcher.PollIntervalMS = 1000
	}
	if c.Launcher.BrowserDelayMS == 0 {
		c.Launcher.BrowserDelayMS = 2000
	}
	if c.Launcher.ShutdownGraceMS == 0 {
		c.Launcher.ShutdownGraceMS = 5000
	}
	if c.Launcher.ServerBinary == "" {
		c.Launcher.ServerBinary = "safesound-server"
	}
	if c.Launcher.AppScript == "" {
		c.Launcher.AppScript = "safesound.yaml"
	}

	// Whisper defaults
	if c.Whisper.Backend == "" {
		c.Whisper.Backend = "cli"
	}
	if c.Whisper.BinaryPath == "" && c.Whisper.Backend == "cli" {
		c.Whisper.BinaryPath = "whisper-cli"
	}
	if c.Whisper.ModelsDir == "" {
		c.Whisper.ModelsDir = "~/.safesound/models"
	}
	if c.Whisper.ServerURL == "" && c.Whisper.Backend == "server" {
		c.Whisper.ServerURL = "http://localhost:8178"
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 4
	}
	if c.Whisper.FFmpegPath == "" {
		c.Whisper.FFmpegPath = "ffmpeg"
	}

	// History defaults
	if c.History.Driver == "" {
		c.History.Driver = "sqlite"
	}
	if c.History.Path == "" {
		c.History.Path = "~/.safesound/history.db"
	}

	if c.Upload.MaxMB == 0 {
		c.Upload.MaxMB = 200
	}

	if c.Debug.LogLevel == "" {
		c.Debug.LogLevel = "info"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Launcher.Port < 1 || c.Launcher.Port > 65535 {
		return fmt.Errorf("invalid launcher port: %d", c.Launcher.Port)
	}
	if c.Launcher.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be positive: %d", c.Launcher.TimeoutSeconds)
	}
	if c.Launcher.PollIntervalMS < 0 {
		return fmt.Errorf("poll_interval_ms must be positive: %d", c.Launcher.PollIntervalMS)
	}

	switch c.Whisper.Backend {
	case "cli":
		if c.Whisper.BinaryPath == "" {
			return errors.New("binary_path is required for the cli whisper backend")
		}
	case "server":
		if c.Whisper.ServerURL == "" {
			return errors.New("server_url is required for the server whisper backend")
		}
	default:
		return fmt.Errorf("invalid whisper backend: %s (must be 'cli' or 'server')", c.Whisper.Backend)
	}

	if c.History.Enabled {
		switch c.History.Driver {
		case "sqlite", "sqlite3":
		case "postgres", "postgresql":
			if c.History.URL == "" {
				return errors.New("history url is required for the postgres driver")
			}
		default:
			return fmt.Errorf("invalid history driver: %s (must be 'sqlite' or 'postgres')", c.History.Driver)
		}
	}

	return nil
}

// HealthTimeout returns the overall health-check budget.
func (l LauncherConfig) HealthTimeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// PollInterval returns the delay between health probes.
func (l LauncherConfig) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMS) * time.Millisecond
}

// BrowserDelay returns the pause between a healthy server and opening the browser.
func (l LauncherConfig) BrowserDelay() time.Duration {
	return time.Duration(l.BrowserDelayMS) * time.Millisecond
}

// ShutdownGrace returns how long a child gets to stop on its own.
func (l LauncherConfig) ShutdownGrace() time.Duration {
	return time.Duration(l.ShutdownGraceMS) * time.Millisecond
}

// URL returns the address users browse to.
func (l LauncherConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", l.Host, l.Port)
}
