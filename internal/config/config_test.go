package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
[[transcription.providers]]
name = "gemini"
model = "gemini-2.0-flash"
`

func TestLoadAndValidateDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"server port", cfg.Server.Port, 8080},
		{"server host", cfg.Server.Host, "127.0.0.1"},
		{"log level", cfg.Logging.Level, "info"},
		{"log format", cfg.Logging.Format, "console"},
		{"sample period", cfg.Capture.SamplePeriodMs, 200},
		{"threshold", cfg.Capture.ThresholdDB, -50.0},
		{"hangover", cfg.Capture.HangoverMs, 1500},
		{"sample rate", cfg.Capture.SampleRate, 16000},
		{"channels", cfg.Capture.Channels, 1},
		{"max attempts", cfg.Transcription.MaxAttempts, 3},
		{"initial backoff", cfg.Transcription.InitialBackoffMs, 1000},
		{"poll interval", cfg.Connectivity.PollIntervalSec, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("default = %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
host = "0.0.0.0"

[capture]
sample_period_ms = 100
threshold_db = -42.5
hangover_ms = 2000

[transcription]
max_attempts = 5
initial_backoff_ms = 250

[[transcription.providers]]
name = "openai"
model = "whisper-1"
base_url = "http://localhost:9999"

[[transcription.providers]]
name = "gemini"
model = "gemini-2.0-flash"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Capture.ThresholdDB != -42.5 {
		t.Errorf("threshold = %v, want -42.5", cfg.Capture.ThresholdDB)
	}
	if len(cfg.Transcription.Providers) != 2 {
		t.Fatalf("got %d providers, want 2", len(cfg.Transcription.Providers))
	}
	// Provider order is the fallback order and must survive decoding
	if cfg.Transcription.Providers[0].Name != "openai" || cfg.Transcription.Providers[1].Name != "gemini" {
		t.Errorf("provider order = %q, %q", cfg.Transcription.Providers[0].Name, cfg.Transcription.Providers[1].Name)
	}
	if cfg.Transcription.Providers[0].BaseURL != "http://localhost:9999" {
		t.Errorf("base url = %q", cfg.Transcription.Providers[0].BaseURL)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Transcription.Providers = nil },
			wantErr: true,
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.Transcription.Providers[0].Name = "whisperx"
			},
			wantErr: true,
		},
		{
			name: "provider without model",
			mutate: func(c *Config) {
				c.Transcription.Providers[0].Model = ""
			},
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "negative hangover",
			mutate:  func(c *Config) { c.Capture.HangoverMs = -1 },
			wantErr: true,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "valid baseline",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback() error = %v", err)
	}
	if len(cfg.Transcription.Providers) != 1 {
		t.Errorf("got %d providers, want 1", len(cfg.Transcription.Providers))
	}
}
