package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config is the persistent application configuration
type Config struct {
	// Backend holds the analysis service connection settings
	Backend BackendConfig `json:"backend"`

	// Serve holds the built-in stub backend settings
	Serve ServeConfig `json:"serve"`

	// UI Preferences
	UI UIConfig `json:"ui"`

	// DataDir is where logs, events, and history live. Defaults to ~/.callsight
	DataDir string `json:"data_dir,omitempty"`

	// LogLevel controls the text log verbosity ("debug", "info", "warn", "error")
	LogLevel string `json:"log_level,omitempty"`
}

// BackendConfig holds connection settings for the analysis service
type BackendConfig struct {
	BaseURL               string `json:"base_url"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"` // covers the whole stream, not one read
}

// ServeConfig holds settings for the local stub backend
type ServeConfig struct {
	Addr         string `json:"addr"`
	StageDelayMs int    `json:"stage_delay_ms"` // artificial delay between stream events
}

// UIConfig holds UI preferences
type UIConfig struct {
	HistoryLimit int `json:"history_limit"` // rows shown in the history view
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:               "http://localhost:8090",
			RequestTimeoutSeconds: 300, // LLM analysis runs are slow
		},
		Serve: ServeConfig{
			Addr:         ":8090",
			StageDelayMs: 400,
		},
		UI: UIConfig{
			HistoryLimit: 50,
		},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".callsight", "config.json")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	path := ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults and try to auto-populate from environment
			cfg := DefaultConfig()
			cfg.AutoPopulateFromEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), nil
	}

	cfg.applyFallbacks()
	cfg.AutoPopulateFromEnv()
	return &cfg, nil
}

// applyFallbacks fills zero values in a hand-edited config file
func (c *Config) applyFallbacks() {
	def := DefaultConfig()
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = def.Backend.BaseURL
	}
	if c.Backend.RequestTimeoutSeconds <= 0 {
		c.Backend.RequestTimeoutSeconds = def.Backend.RequestTimeoutSeconds
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = def.Serve.Addr
	}
	if c.UI.HistoryLimit <= 0 {
		c.UI.HistoryLimit = def.UI.HistoryLimit
	}
}

// Save writes config to disk
func (c *Config) Save() error {
	path := ConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// AutoPopulateFromEnv overrides settings from environment variables
func (c *Config) AutoPopulateFromEnv() {
	if v := os.Getenv("CALLSIGHT_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("CALLSIGHT_SERVE_ADDR"); v != "" {
		c.Serve.Addr = v
	}
	if v := os.Getenv("CALLSIGHT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CALLSIGHT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// RequestTimeout returns the backend timeout as a duration
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
}

// StageDelay returns the stub backend's inter-event delay as a duration
func (c *Config) StageDelay() time.Duration {
	return time.Duration(c.Serve.StageDelayMs) * time.Millisecond
}

// ResolveDataDir returns the data directory, creating it if needed.
// Order: explicit config value, CALLSIGHT_DATA_DIR, ~/.callsight.
func (c *Config) ResolveDataDir() (string, error) {
	dir := c.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".callsight")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// EventLogPath returns the JSONL observability log path under dataDir
func EventLogPath(dataDir string) string {
	return filepath.Join(dataDir, "callsight.events.jsonl")
}

// HistoryDBPath returns the sqlite history database path under dataDir
func HistoryDBPath(dataDir string) string {
	return filepath.Join(dataDir, "history.db")
}
