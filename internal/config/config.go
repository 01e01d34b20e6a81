package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Storage       StorageConfig       `toml:"storage"`       // Data persistence settings
	Capture       CaptureConfig       `toml:"capture"`       // Audio capture and segmentation settings
	Transcription TranscriptionConfig `toml:"transcription"` // Speech-to-text provider settings
	Connectivity  ConnectivityConfig  `toml:"connectivity"`  // Backend reachability polling settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next keep-alive request
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// CaptureConfig contains audio capture and segmentation settings
type CaptureConfig struct {
	SamplePeriodMs int     `toml:"sample_period_ms"` // Loudness sampling period in milliseconds
	ThresholdDB    float64 `toml:"threshold_db"`     // Speech loudness threshold in dBFS
	HangoverMs     int     `toml:"hangover_ms"`      // Trailing silence that closes a chunk, in milliseconds
	SampleRate     int     `toml:"sample_rate"`      // Capture sample rate in Hz
	Channels       int     `toml:"channels"`         // Number of audio channels (1 for mono)
	FFmpegPath     string  `toml:"ffmpeg_path"`      // Path to FFmpeg executable
	MicrophoneDev  string  `toml:"microphone_dev"`   // Device identifier for microphone capture
	CaptureFormat  string  `toml:"capture_format"`   // FFmpeg input format for device capture (e.g., "pulse", "avfoundation")
}

// ProviderConfig identifies one speech-to-text backend in the fallback chain
type ProviderConfig struct {
	Name    string `toml:"name"`     // Provider kind: "gemini" or "openai"
	Model   string `toml:"model"`    // Model identifier (e.g., "gemini-2.0-flash", "whisper-1")
	BaseURL string `toml:"base_url"` // Optional base URL override (e.g., for proxies)
}

// TranscriptionConfig contains speech-to-text dispatch settings
type TranscriptionConfig struct {
	Providers         []ProviderConfig `toml:"providers"`           // Ordered fallback chain; first entry is tried first
	MaxAttempts       int              `toml:"max_attempts"`        // Attempts per provider before falling through
	InitialBackoffMs  int              `toml:"initial_backoff_ms"`  // First retry delay in milliseconds, doubles each retry
	RequestTimeoutSec int              `toml:"request_timeout_sec"` // Per-request timeout in seconds
}

// ConnectivityConfig contains backend reachability polling settings
type ConnectivityConfig struct {
	PollIntervalSec int    `toml:"poll_interval_seconds"` // How often to probe reachability
	ProbeURL        string `toml:"probe_url"`             // Endpoint probed for reachability
}

// Load loads the configuration from the given path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback tries to load configuration from multiple locations
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults for
// unspecified values
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	// Validate storage config
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "scribeline.db"
	}

	// Validate capture config
	if c.Capture.SamplePeriodMs == 0 {
		c.Capture.SamplePeriodMs = 200
	}
	if c.Capture.SamplePeriodMs < 0 {
		return fmt.Errorf("invalid sample_period_ms: %d", c.Capture.SamplePeriodMs)
	}
	if c.Capture.ThresholdDB == 0 {
		c.Capture.ThresholdDB = -50.0
	}
	if c.Capture.HangoverMs == 0 {
		c.Capture.HangoverMs = 1500
	}
	if c.Capture.HangoverMs < 0 {
		return fmt.Errorf("invalid hangover_ms: %d", c.Capture.HangoverMs)
	}
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.SampleRate < 0 {
		return fmt.Errorf("invalid sample_rate: %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels == 0 {
		c.Capture.Channels = 1
	}
	if c.Capture.Channels < 0 {
		return fmt.Errorf("invalid channels: %d", c.Capture.Channels)
	}
	if c.Capture.FFmpegPath == "" {
		c.Capture.FFmpegPath = "ffmpeg"
	}

	// Validate transcription config
	if len(c.Transcription.Providers) == 0 {
		return fmt.Errorf("at least one transcription provider is required")
	}
	for i, p := range c.Transcription.Providers {
		if p.Name != "gemini" && p.Name != "openai" {
			return fmt.Errorf("unknown transcription provider at index %d: %q", i, p.Name)
		}
		if p.Model == "" {
			return fmt.Errorf("transcription provider %q requires a model", p.Name)
		}
	}
	if c.Transcription.MaxAttempts == 0 {
		c.Transcription.MaxAttempts = 3
	}
	if c.Transcription.MaxAttempts < 0 {
		return fmt.Errorf("invalid max_attempts: %d", c.Transcription.MaxAttempts)
	}
	if c.Transcription.InitialBackoffMs == 0 {
		c.Transcription.InitialBackoffMs = 1000
	}
	if c.Transcription.InitialBackoffMs < 0 {
		return fmt.Errorf("invalid initial_backoff_ms: %d", c.Transcription.InitialBackoffMs)
	}
	if c.Transcription.RequestTimeoutSec == 0 {
		c.Transcription.RequestTimeoutSec = 60
	}

	// Validate connectivity config
	if c.Connectivity.PollIntervalSec == 0 {
		c.Connectivity.PollIntervalSec = 5
	}
	if c.Connectivity.PollIntervalSec < 0 {
		return fmt.Errorf("invalid poll_interval_seconds: %d", c.Connectivity.PollIntervalSec)
	}

	return nil
}
