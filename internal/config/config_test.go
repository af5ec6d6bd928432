package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Storage.Path != "inalign.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Identity.SignRecords {
		t.Error("signing should be off by default")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inalign.yaml")
	raw := `version: "1"
storage:
  path: /var/lib/inalign/ledger.db
identity:
  keys_dir: /etc/inalign/keys
  sign_records: true
detect:
  rapid_min_events: 20
  exfil_window_sec: 120
alerts:
  enabled: true
  redis_addr: redis.internal:6379
log_level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Path != "/var/lib/inalign/ledger.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if !cfg.Identity.SignRecords {
		t.Error("sign_records not parsed")
	}
	if cfg.Detect.RapidMinEvents != 20 {
		t.Errorf("rapid_min_events = %d", cfg.Detect.RapidMinEvents)
	}
	if cfg.Detect.ExfilWindowSecs != 120 {
		t.Errorf("exfil_window_sec = %d", cfg.Detect.ExfilWindowSecs)
	}
	if cfg.Alerts.Channel != "inalign.findings" {
		t.Errorf("default channel not applied: %q", cfg.Alerts.Channel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }},
		{"signing without keys dir", func(c *Config) { c.Identity.SignRecords = true; c.Identity.KeysDir = "" }},
		{"alerts without redis addr", func(c *Config) { c.Alerts.Enabled = true; c.Alerts.RedisAddr = "" }},
		{"archive without dsn", func(c *Config) { c.Archive.Enabled = true }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative z-score", func(c *Config) { c.Detect.DriftZScore = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inalign.yaml")
	cfg := Defaults()
	cfg.CustomRulesDir = "/etc/inalign/rules"

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.CustomRulesDir != cfg.CustomRulesDir {
		t.Errorf("custom_rules_dir = %q, want %q", loaded.CustomRulesDir, cfg.CustomRulesDir)
	}
}
