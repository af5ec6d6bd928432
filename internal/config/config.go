package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level inalign configuration.
type Config struct {
	Version        string          `yaml:"version"`
	Storage        StorageConfig   `yaml:"storage"`
	Identity       IdentityConfig  `yaml:"identity"`
	Detect         DetectConfig    `yaml:"detect"`
	CustomRulesDir string          `yaml:"custom_rules_dir,omitempty"`
	Alerts         AlertsConfig    `yaml:"alerts,omitempty"`
	Archive        ArchiveConfig   `yaml:"archive,omitempty"`
	Telemetry      TelemetryConfig `yaml:"telemetry,omitempty"`
	LogLevel       string          `yaml:"log_level"`
}

// StorageConfig holds the ledger database location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// IdentityConfig configures record signing.
type IdentityConfig struct {
	KeysDir     string `yaml:"keys_dir"`
	SignRecords bool   `yaml:"sign_records"`
}

// DetectConfig tunes detector thresholds. Zero values fall back to the
// built-in defaults, so a config file only names what it overrides.
type DetectConfig struct {
	RapidMinEvents     int     `yaml:"rapid_min_events,omitempty"`
	RapidMinFastGaps   int     `yaml:"rapid_min_fast_gaps,omitempty"`
	RapidGapMillis     int     `yaml:"rapid_gap_ms,omitempty"`
	ExfilWindowSecs    int     `yaml:"exfil_window_sec,omitempty"`
	DriftZScore        float64 `yaml:"drift_z_score,omitempty"`
	DriftIntervalRatio float64 `yaml:"drift_interval_ratio,omitempty"`
	DetectorTimeoutSec int     `yaml:"detector_timeout_sec,omitempty"`
}

// AlertsConfig configures finding publication to Redis.
type AlertsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
	Channel   string `yaml:"channel,omitempty"`
}

// ArchiveConfig configures the Postgres compliance archive.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TelemetryConfig enables trace export.
type TelemetryConfig struct {
	Traces bool `yaml:"traces"`
}

// Load reads and parses an inalign config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "inalign.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Alerts.Channel == "" {
		cfg.Alerts.Channel = "inalign.findings"
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Storage: StorageConfig{
			Path: "inalign.db",
		},
		Identity: IdentityConfig{
			KeysDir:     "./keys",
			SignRecords: false,
		},
		Alerts: AlertsConfig{
			RedisAddr: "localhost:6379",
			Channel:   "inalign.findings",
		},
		LogLevel: "info",
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Identity.SignRecords && c.Identity.KeysDir == "" {
		return fmt.Errorf("keys_dir is required when sign_records is true")
	}
	if c.Alerts.Enabled && c.Alerts.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when alerts are enabled")
	}
	if c.Archive.Enabled && c.Archive.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required when archive is enabled")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	if c.Detect.DriftZScore < 0 {
		return fmt.Errorf("drift_z_score must be non-negative")
	}
	return nil
}
