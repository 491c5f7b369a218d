package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	defaultTimeoutSeconds    = 30
	defaultIntervalSeconds   = 300
	defaultMediaConcurrency  = 4
	defaultDebounceMS        = 1000
	defaultTolerancePX       = 50
	defaultMaxAttempts       = 5
	defaultBaseDelayMS       = 100
	defaultMinRestorePercent = 2
	defaultLogMaxSizeMB      = 10
	defaultLogMaxBackups     = 3
	defaultLogMaxAgeDays     = 28
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Paths: Paths{
			DB:     filepath.Join(xdg.DataHome, "polymath", "cache.db"),
			LogDir: filepath.Join(xdg.StateHome, "polymath"),
		},
		API: API{
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Sync: Sync{
			IntervalSeconds:  defaultIntervalSeconds,
			Periodic:         true,
			MediaConcurrency: defaultMediaConcurrency,
			Dashboards:       []string{"overview"},
		},
		Progress: Progress{
			DebounceMS:        defaultDebounceMS,
			TolerancePX:       defaultTolerancePX,
			MaxAttempts:       defaultMaxAttempts,
			BaseDelayMS:       defaultBaseDelayMS,
			MinRestorePercent: defaultMinRestorePercent,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
