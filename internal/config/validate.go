package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate ensures the configuration is usable. An empty API base URL is
// allowed; the cache then works offline only.
func (c *Config) Validate() error {
	if c.Paths.DB == "" {
		return fmt.Errorf("%w: paths.db must be set", ErrInvalid)
	}
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: api.base_url %q must be an http(s) url", ErrInvalid, c.API.BaseURL)
		}
	}
	if c.Sync.Periodic && c.Sync.IntervalSeconds < 10 {
		return fmt.Errorf("%w: sync.interval_seconds must be at least 10 when periodic sync is on", ErrInvalid)
	}
	if c.Sync.EvictAfterDays < 0 {
		return fmt.Errorf("%w: sync.evict_after_days must not be negative", ErrInvalid)
	}
	if c.Progress.MinRestorePercent < 0 || c.Progress.MinRestorePercent > 100 {
		return fmt.Errorf("%w: progress.min_restore_percent must be between 0 and 100", ErrInvalid)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: logging.level %q is not one of debug, info, warn, error", ErrInvalid, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format %q must be console or json", ErrInvalid, c.Logging.Format)
	}
	return nil
}
