package reaper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbox/ragbox/config"
)

type countingPurger struct {
	calls     atomic.Int32
	retention atomic.Int64
	err       error
}

func (p *countingPurger) PurgeExpired(_ context.Context, retention time.Duration) (int64, error) {
	p.calls.Add(1)
	p.retention.Store(int64(retention))
	return 1, p.err
}

func TestNewRunnerRequiresPurger(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}

func TestRunnerRunOnceUsesRetention(t *testing.T) {
	p := &countingPurger{}
	r, err := NewRunner(RunnerOptions{Purger: p, Config: config.TokenReaperConfig{Retention: 48 * time.Hour}})
	require.NoError(t, err)

	n, err := r.RunOnce(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, int64(48*time.Hour), p.retention.Load())
}

func TestRunnerRunPurgesUntilCanceled(t *testing.T) {
	p := &countingPurger{err: errors.New("db down")}
	r, err := NewRunner(RunnerOptions{Purger: p, Config: config.TokenReaperConfig{Interval: 10 * time.Millisecond}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"failures do not stop the loop")
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
