package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops state older than maxAge and reports how much it removed.
type Sweeper interface {
	Cleanup(maxAge time.Duration) int
}

// Cleaner periodically sweeps in-memory windows. Redis keys expire on their own.
type Cleaner struct {
	sweeper  Sweeper
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(sweeper Sweeper, interval, maxAge time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		sweeper:  sweeper,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run starts the cleaner loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.sweeper == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			if removed := c.sweeper.Cleanup(c.maxAge); removed > 0 {
				c.log.Debug("rate limit windows cleaned", slog.Int("keys_removed", removed))
			}
		}
	}
}
