package redis

// Package redis provides Redis-backed adapters for ragbox.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
)

const (
	defaultAuthStateTTL     = 10 * time.Minute
	defaultSessionRetention = time.Hour
)

// SessionStoreOptions configures a SessionStore.
type SessionStoreOptions struct {
	Prefix       string        // Key namespace, defaults to "ragbox:"
	AuthStateTTL time.Duration // Lifetime of unconsumed authorization states
	// Retention keeps sessions readable for a while after ExpiresAt so that
	// callers, not Redis, decide what expiry means.
	Retention time.Duration
}

// SessionStore is the Redis session registry. Authorization states are
// consumed with GETDEL so two concurrent callbacks cannot both succeed.
type SessionStore struct {
	client    redis.UniversalClient
	prefix    string
	stateTTL  time.Duration
	retention time.Duration
}

// NewSessionStore creates a new Redis-backed session registry.
func NewSessionStore(client redis.UniversalClient, opts SessionStoreOptions) *SessionStore {
	if client == nil {
		panic("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ragbox:"
	}
	stateTTL := opts.AuthStateTTL
	if stateTTL <= 0 {
		stateTTL = defaultAuthStateTTL
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultSessionRetention
	}
	return &SessionStore{
		client:    client,
		prefix:    prefix,
		stateTTL:  stateTTL,
		retention: retention,
	}
}

func (s *SessionStore) stateKey(state string) string { return s.prefix + "oauth_state:" + state }
func (s *SessionStore) sessionKey(id string) string  { return s.prefix + "session:" + id }

func (s *SessionStore) StoreAuthState(ctx context.Context, st domainauth.AuthorizationState) error {
	if st.State == "" {
		return errors.New("state cannot be empty")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal auth state: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.stateKey(st.State), data, s.stateTTL).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return errors.New("auth state already exists")
	}
	return nil
}

func (s *SessionStore) GetAndRemoveAuthState(ctx context.Context, state string) (*domainauth.AuthorizationState, error) {
	if state == "" {
		return nil, ports.ErrNotFound
	}
	data, err := s.client.GetDel(ctx, s.stateKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel: %w", err)
	}

	var st domainauth.AuthorizationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal auth state: %w", err)
	}
	return &st, nil
}

func (s *SessionStore) CreateSession(ctx context.Context, sess domainauth.OAuthSessionData) error {
	if sess.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	return s.client.Set(ctx, s.sessionKey(sess.SessionID), data, ttl).Err()
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*domainauth.OAuthSessionData, error) {
	if id == "" {
		return nil, ports.ErrNotFound
	}
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.OAuthSessionData
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.client.Del(ctx, s.sessionKey(id)).Err()
}
