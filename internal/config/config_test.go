package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/rcliao/polymath/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("POLYMATH_DB", "")
	t.Setenv("POLYMATH_API_URL", "")
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if !strings.HasSuffix(cfg.Paths.DB, filepath.Join("polymath", "cache.db")) {
		t.Errorf("unexpected default db path %q", cfg.Paths.DB)
	}
	if cfg.APITimeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.APITimeout())
	}
	if cfg.Debounce() != time.Second || cfg.Progress.TolerancePX != 50 || cfg.Progress.MaxAttempts != 5 {
		t.Errorf("unexpected progress defaults %+v", cfg.Progress)
	}
	if cfg.EvictAfter() != 0 {
		t.Errorf("expected eviction disabled by default")
	}
}

func TestLoadTOMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
db = "` + filepath.ToSlash(filepath.Join(dir, "file.db")) + `"

[api]
base_url = "https://file.example.com/"
timeout_seconds = 5

[sync]
interval_seconds = 60
dashboards = ["overview", " ", "streaks"]

[logging]
level = "DEBUG"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	envDB := filepath.Join(dir, "env.db")
	t.Setenv("POLYMATH_DB", envDB)
	t.Setenv("POLYMATH_API_URL", "")
	t.Setenv("POLYMATH_API_TOKEN", "secret")

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Paths.DB != envDB {
		t.Errorf("expected env db override, got %q", cfg.Paths.DB)
	}
	if cfg.API.BaseURL != "https://file.example.com" || cfg.API.Token != "secret" {
		t.Errorf("unexpected api config %+v", cfg.API)
	}
	if cfg.APITimeout() != 5*time.Second || cfg.SyncInterval() != time.Minute {
		t.Errorf("unexpected durations %s %s", cfg.APITimeout(), cfg.SyncInterval())
	}
	if len(cfg.Sync.Dashboards) != 2 || cfg.Sync.Dashboards[1] != "streaks" {
		t.Errorf("unexpected dashboards %v", cfg.Sync.Dashboards)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("POLYMATH_DB", "")
	t.Setenv("POLYMATH_API_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "api:\n  base_url: http://localhost:8080\nsync:\n  periodic: false\nbroadcast:\n  listen: 127.0.0.1:7490\n  peers:\n    - ws://127.0.0.1:7491/ws\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080" || cfg.Sync.Periodic {
		t.Errorf("unexpected config %+v %+v", cfg.API, cfg.Sync)
	}
	if cfg.Broadcast.Listen != "127.0.0.1:7490" || len(cfg.Broadcast.Peers) != 1 {
		t.Errorf("unexpected broadcast config %+v", cfg.Broadcast)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad url", func(c *config.Config) { c.API.BaseURL = "ftp://nope" }},
		{"short interval", func(c *config.Config) { c.Sync.IntervalSeconds = 1 }},
		{"negative eviction", func(c *config.Config) { c.Sync.EvictAfterDays = -1 }},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"no db", func(c *config.Config) { c.Paths.DB = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("POLYMATH_DB", "")
	t.Setenv("POLYMATH_API_URL", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil || !exists {
		t.Fatalf("Load(sample) = %v, exists=%v", err, exists)
	}
	if cfg.Progress.MinRestorePercent != 2 {
		t.Errorf("unexpected sample min restore percent %v", cfg.Progress.MinRestorePercent)
	}
}
