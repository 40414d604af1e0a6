// Package reaper runs periodic cleanup of expired access tokens.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ragbox/ragbox/config"
)

// Purger deletes expired records older than retention.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Runner calls Purger on a fixed interval.
type Runner struct {
	purger    Purger
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Purger Purger
	Config config.TokenReaperConfig
	Logger *slog.Logger
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Purger == nil {
		return nil, errors.New("reaper: purger is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Config.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		purger:    opts.Purger,
		interval:  interval,
		retention: max(opts.Config.Retention, 0),
		logger:    logger.With("component", "token_reaper"),
	}, nil
}

// RunOnce performs a single purge.
func (r *Runner) RunOnce(ctx context.Context) (int64, error) {
	return r.purger.PurgeExpired(ctx, r.retention)
}

// Run purges immediately and then every interval until ctx is canceled.
// Purge failures are logged and retried on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting token reaper", "interval", r.interval, "retention", r.retention)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "token purge failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
