package memory

// Package memory provides in-process implementations of the storage ports
// for single-instance deployments and tests.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
)

// ErrCapacityExceeded is returned when too many logins are pending.
var ErrCapacityExceeded = ports.ErrCapacityExceeded

const (
	defaultMaxPendingStates = 10_000
	defaultSweepInterval    = time.Minute
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	AuthStateTTL     time.Duration // Unconsumed states older than this are dropped
	SessionRetention time.Duration // Sessions are swept this long after ExpiresAt
	MaxPendingStates int
	Logger           *slog.Logger
	Now              func() time.Time // Defaults to time.Now
}

// Registry keeps authorization states and OAuth sessions in memory. All
// state lives behind one mutex so get-and-remove is atomic.
type Registry struct {
	stateTTL  time.Duration
	retention time.Duration
	maxStates int
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	states   map[string]domainauth.AuthorizationState
	sessions map[string]domainauth.OAuthSessionData
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stateTTL := opts.AuthStateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	maxStates := opts.MaxPendingStates
	if maxStates <= 0 {
		maxStates = defaultMaxPendingStates
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		stateTTL:  stateTTL,
		retention: max(opts.SessionRetention, 0),
		maxStates: maxStates,
		logger:    logger.With("component", "memory_registry"),
		now:       now,
		states:    make(map[string]domainauth.AuthorizationState),
		sessions:  make(map[string]domainauth.OAuthSessionData),
	}
}

func (r *Registry) StoreAuthState(_ context.Context, st domainauth.AuthorizationState) error {
	if st.State == "" {
		return errors.New("state cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.states[st.State]; exists {
		return errors.New("auth state already exists")
	}
	if len(r.states) >= r.maxStates {
		r.sweepStatesLocked(r.now())
		if len(r.states) >= r.maxStates {
			return ErrCapacityExceeded
		}
	}
	r.states[st.State] = st
	return nil
}

func (r *Registry) GetAndRemoveAuthState(_ context.Context, state string) (*domainauth.AuthorizationState, error) {
	r.mu.Lock()
	st, ok := r.states[state]
	delete(r.states, state)
	r.mu.Unlock()

	if !ok || st.IsExpired(r.now(), r.stateTTL) {
		return nil, ports.ErrNotFound
	}
	return &st, nil
}

func (r *Registry) CreateSession(_ context.Context, sess domainauth.OAuthSessionData) error {
	if sess.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	sess.Groups = append([]string(nil), sess.Groups...)
	r.mu.Lock()
	r.sessions[sess.SessionID] = sess
	r.mu.Unlock()
	return nil
}

func (r *Registry) GetSession(_ context.Context, id string) (*domainauth.OAuthSessionData, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ports.ErrNotFound
	}
	sess.Groups = append([]string(nil), sess.Groups...)
	return &sess, nil
}

func (r *Registry) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}

// Stats returns the number of pending authorization states and stored sessions.
func (r *Registry) Stats() (states, sessions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states), len(r.sessions)
}

// Sweep drops expired authorization states and sessions past retention.
// It returns the number of states and sessions removed.
func (r *Registry) Sweep() (states, sessions int) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	states = r.sweepStatesLocked(now)
	for id, sess := range r.sessions {
		if !sess.ExpiresAt.Add(r.retention).After(now) {
			delete(r.sessions, id)
			sessions++
		}
	}
	return states, sessions
}

func (r *Registry) sweepStatesLocked(now time.Time) int {
	n := 0
	for key, st := range r.states {
		if st.IsExpired(now, r.stateTTL) {
			delete(r.states, key)
			n++
		}
	}
	return n
}

// Run sweeps on interval until ctx is canceled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			states, sessions := r.Sweep()
			if states > 0 || sessions > 0 {
				r.logger.DebugContext(ctx, "registry sweep", "states_evicted", states, "sessions_evicted", sessions)
			}
		}
	}
}
