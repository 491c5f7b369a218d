package config

import (
	"fmt"
	"os"
	"strings"
)

// applyEnv overrides file values with POLYMATH_* environment variables.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("POLYMATH_DB"); ok && strings.TrimSpace(v) != "" {
		c.Paths.DB = v
	}
	if v, ok := os.LookupEnv("POLYMATH_API_URL"); ok && strings.TrimSpace(v) != "" {
		c.API.BaseURL = v
	}
	if v, ok := os.LookupEnv("POLYMATH_API_TOKEN"); ok {
		c.API.Token = v
	}
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DB, err = expandPath(strings.TrimSpace(c.Paths.DB)); err != nil {
		return fmt.Errorf("paths.db: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.Sync.MediaConcurrency <= 0 {
		c.Sync.MediaConcurrency = defaultMediaConcurrency
	}
	dashboards := c.Sync.Dashboards[:0]
	for _, name := range c.Sync.Dashboards {
		if name = strings.TrimSpace(name); name != "" {
			dashboards = append(dashboards, name)
		}
	}
	c.Sync.Dashboards = dashboards

	if c.Progress.DebounceMS <= 0 {
		c.Progress.DebounceMS = defaultDebounceMS
	}
	if c.Progress.TolerancePX <= 0 {
		c.Progress.TolerancePX = defaultTolerancePX
	}
	if c.Progress.MaxAttempts <= 0 {
		c.Progress.MaxAttempts = defaultMaxAttempts
	}
	if c.Progress.BaseDelayMS <= 0 {
		c.Progress.BaseDelayMS = defaultBaseDelayMS
	}

	c.Broadcast.Listen = strings.TrimSpace(c.Broadcast.Listen)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	return nil
}
