package scheduler

import (
	"time"

	"github.com/fauter/cochera-admin/internal/config"
)

// Config controls maintenance intervals.
type Config struct {
	Enabled        bool
	RunInterval    time.Duration
	JobTimeout     time.Duration
	TokenRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		RunInterval:    10 * time.Minute,
		JobTimeout:     30 * time.Second,
		TokenRetention: 30 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.TokenRetention <= 0 {
		c.TokenRetention = defaults.TokenRetention
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:        cfg.Scheduler.Enabled,
		RunInterval:    cfg.Scheduler.RunInterval,
		JobTimeout:     cfg.Scheduler.JobTimeout,
		TokenRetention: cfg.Scheduler.TokenRetention,
	}
}
