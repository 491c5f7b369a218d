// Package config loads polymath configuration from TOML or YAML files with
// environment overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file locations.
type Paths struct {
	DB     string `toml:"db" yaml:"db"`
	LogDir string `toml:"log_dir" yaml:"log_dir"`
}

// API contains remote API connection settings.
type API struct {
	BaseURL        string `toml:"base_url" yaml:"base_url"`
	Token          string `toml:"token" yaml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Sync contains orchestrator settings.
type Sync struct {
	IntervalSeconds  int      `toml:"interval_seconds" yaml:"interval_seconds"`
	Periodic         bool     `toml:"periodic" yaml:"periodic"`
	MediaConcurrency int      `toml:"media_concurrency" yaml:"media_concurrency"`
	Dashboards       []string `toml:"dashboards" yaml:"dashboards"`
	EvictAfterDays   int      `toml:"evict_after_days" yaml:"evict_after_days"`
}

// Progress contains reading position settings.
type Progress struct {
	DebounceMS        int     `toml:"debounce_ms" yaml:"debounce_ms"`
	TolerancePX       float64 `toml:"tolerance_px" yaml:"tolerance_px"`
	MaxAttempts       int     `toml:"max_attempts" yaml:"max_attempts"`
	BaseDelayMS       int     `toml:"base_delay_ms" yaml:"base_delay_ms"`
	MinRestorePercent float64 `toml:"min_restore_percent" yaml:"min_restore_percent"`
}

// Broadcast contains cross-process event settings.
type Broadcast struct {
	Listen string   `toml:"listen" yaml:"listen"`
	Peers  []string `toml:"peers" yaml:"peers"`
}

// Logging contains log output settings.
type Logging struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	File       bool   `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// Config encapsulates all configuration values.
type Config struct {
	Paths     Paths     `toml:"paths" yaml:"paths"`
	API       API       `toml:"api" yaml:"api"`
	Sync      Sync      `toml:"sync" yaml:"sync"`
	Progress  Progress  `toml:"progress" yaml:"progress"`
	Broadcast Broadcast `toml:"broadcast" yaml:"broadcast"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "polymath", "config.toml")
}

// Load locates, parses, normalizes and validates a configuration file. A
// missing file is not an error; defaults and environment apply. It returns
// the resolved path and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := decode(resolved, data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// APITimeout returns the per-request timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// SyncInterval returns the periodic sync interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// EvictAfter returns the age after which offline content is evicted, or zero
// when eviction is disabled.
func (c *Config) EvictAfter() time.Duration {
	return time.Duration(c.Sync.EvictAfterDays) * 24 * time.Hour
}

// Debounce returns the progress save quiet period.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Progress.DebounceMS) * time.Millisecond
}

// RestoreDelay returns the base retry delay for position restore.
func (c *Config) RestoreDelay() time.Duration {
	return time.Duration(c.Progress.BaseDelayMS) * time.Millisecond
}

// LogFile returns the rotating log file path.
func (c *Config) LogFile() string {
	return filepath.Join(c.Paths.LogDir, "polymath.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
