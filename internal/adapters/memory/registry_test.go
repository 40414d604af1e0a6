package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
	"github.com/ragbox/ragbox/internal/testutil"
)

func newTestRegistry(t *testing.T, opts RegistryOptions) (*Registry, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(testutil.TestTime())
	opts.Now = clock.Now
	return NewRegistry(opts), clock
}

func TestRegistry_AuthStateSingleUse(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t, RegistryOptions{AuthStateTTL: 10 * time.Minute})

	require.NoError(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{
		State:        "s1",
		CodeVerifier: "v1",
		CreatedAt:    clock.Now(),
	}))

	got, err := r.GetAndRemoveAuthState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.CodeVerifier)

	_, err = r.GetAndRemoveAuthState(ctx, "s1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRegistry_AuthStateRejectsDuplicateAndEmpty(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t, RegistryOptions{})

	require.Error(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{}))
	st := domainauth.AuthorizationState{State: "dup", CreatedAt: clock.Now()}
	require.NoError(t, r.StoreAuthState(ctx, st))
	assert.Error(t, r.StoreAuthState(ctx, st))
}

func TestRegistry_ExpiredAuthStateIsAbsent(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t, RegistryOptions{AuthStateTTL: time.Minute})

	require.NoError(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{State: "old", CreatedAt: clock.Now()}))
	clock.Advance(2 * time.Minute)

	_, err := r.GetAndRemoveAuthState(ctx, "old")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRegistry_ConcurrentConsumeOnce(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t, RegistryOptions{})
	require.NoError(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{State: "race", CreatedAt: clock.Now()}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.GetAndRemoveAuthState(ctx, "race"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRegistry_Capacity(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t, RegistryOptions{AuthStateTTL: time.Minute, MaxPendingStates: 2})

	require.NoError(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{State: "a", CreatedAt: clock.Now()}))
	require.NoError(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{State: "b", CreatedAt: clock.Now()}))
	err := r.StoreAuthState(ctx, domainauth.AuthorizationState{State: "c", CreatedAt: clock.Now()})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// Once the pending states expire the cap frees up.
	clock.Advance(2 * time.Minute)
	assert.NoError(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{State: "c", CreatedAt: clock.Now()}))
}

func TestRegistry_SessionCRUD(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t, RegistryOptions{})

	sess := domainauth.OAuthSessionData{
		SessionID: "sess-1",
		UserID:    "user-1",
		Email:     "a@example.com",
		Groups:    []string{"eng"},
		Provider:  "oidc",
		ExpiresAt: clock.Now().Add(time.Hour),
		CreatedAt: clock.Now(),
	}
	require.NoError(t, r.CreateSession(ctx, sess))

	got, err := r.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess, *got)

	// Returned copies do not alias stored state.
	got.Groups[0] = "mutated"
	again, err := r.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"eng"}, again.Groups)

	require.NoError(t, r.DeleteSession(ctx, "sess-1"))
	_, err = r.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	// Deleting an unknown session is not an error.
	assert.NoError(t, r.DeleteSession(ctx, "missing"))
}

func TestRegistry_Sweep(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t, RegistryOptions{AuthStateTTL: time.Minute, SessionRetention: time.Hour})

	require.NoError(t, r.StoreAuthState(ctx, domainauth.AuthorizationState{State: "s", CreatedAt: clock.Now()}))
	require.NoError(t, r.CreateSession(ctx, domainauth.OAuthSessionData{
		SessionID: "x",
		ExpiresAt: clock.Now().Add(time.Minute),
	}))

	clock.Advance(2 * time.Minute)
	states, sessions := r.Sweep()
	assert.Equal(t, 1, states)
	assert.Equal(t, 0, sessions, "expired sessions stay readable during retention")

	got, err := r.GetSession(ctx, "x")
	require.NoError(t, err)
	assert.True(t, got.IsExpired(clock.Now()))

	clock.Advance(time.Hour)
	_, sessions = r.Sweep()
	assert.Equal(t, 1, sessions)

	pending, stored := r.Stats()
	assert.Zero(t, pending)
	assert.Zero(t, stored)
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
