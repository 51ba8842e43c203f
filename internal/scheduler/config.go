package scheduler

import (
	"time"
)

// Config controls background job intervals.
type Config struct {
	RunInterval time.Duration
	// RefreshAfter is how stale a line's freshest cruise may get before
	// the sweep enqueues a refresh without waiting for a webhook.
	RefreshAfter time.Duration
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Hour,
		RefreshAfter: 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RefreshAfter <= 0 {
		c.RefreshAfter = defaults.RefreshAfter
	}
	return c
}
