package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ragbox/ragbox/internal/observability/metrics"
)

// RateLimiterOptions configures a RateLimiter.
type RateLimiterOptions struct {
	Max           int           // Requests admitted per window
	Window        time.Duration // Sliding window length
	SweepInterval time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Recorder
}

// RateLimiter is a sliding-window log limiter keyed by client identity.
type RateLimiter struct {
	max           int
	window        time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	metrics       *metrics.Recorder
	now           func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewRateLimiter constructs a RateLimiter. Non-positive values fall back to
// 100 requests per minute.
func NewRateLimiter(opts RateLimiterOptions) *RateLimiter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &RateLimiter{
		max:           opts.Max,
		window:        opts.Window,
		sweepInterval: opts.SweepInterval,
		logger:        logger.With("component", "rate_limiter"),
		metrics:       opts.Metrics,
		now:           time.Now,
		hits:          make(map[string][]time.Time),
	}
	if l.max <= 0 {
		l.max = 100
	}
	if l.window <= 0 {
		l.window = time.Minute
	}
	if l.sweepInterval <= 0 {
		l.sweepInterval = time.Minute
	}
	return l
}

// Allow records a request for key. When the key already has Max requests
// inside the window it returns false and how long until the oldest expires.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Entries are appended in time order, so the live ones form a suffix.
	entries := l.hits[key]
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	entries = entries[i:]

	if len(entries) >= l.max {
		l.hits[key] = entries
		retry := entries[0].Add(l.window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		l.metrics.RateLimited()
		return false, retry
	}
	l.hits[key] = append(entries, now)
	return true, 0
}

// Sweep drops keys whose newest entry is older than twice the window and
// returns how many keys were removed.
func (l *RateLimiter) Sweep() int {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, entries := range l.hits {
		if len(entries) == 0 || !entries[len(entries)-1].After(cutoff) {
			delete(l.hits, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// Run sweeps every SweepInterval until ctx is canceled. A panicking sweep is
// logged and the loop continues.
func (l *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.safeSweep(ctx)
		}
	}
}

func (l *RateLimiter) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.ErrorContext(ctx, "rate limiter sweep panicked", "panic", r)
		}
	}()
	if n := l.Sweep(); n > 0 {
		l.metrics.SweepEvicted("ratelimit", n)
		l.logger.DebugContext(ctx, "rate limiter sweep", "keys_evicted", n)
	}
}
