package scheduler

import (
	"time"

	"github.com/smallbiznis/invoicedesk/internal/config"
)

// Config controls the document backfill job.
type Config struct {
	BackfillInterval time.Duration
	BatchSize        int
	JobTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:  100,
		JobTimeout: 2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.BackfillInterval = cfg.BackfillInterval
	return c
}

// Enabled reports whether the backfill job should be scheduled.
func (c Config) Enabled() bool {
	return c.BackfillInterval > 0
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
