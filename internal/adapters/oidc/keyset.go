package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

const (
	maxKeySetBytes    = 1 << 20
	defaultMinRefresh = 10 * time.Second
)

var _ gooidc.KeySet = (*RemoteKeySet)(nil)

// KeySetConfig configures a RemoteKeySet.
type KeySetConfig struct {
	URL        string
	HTTPClient *http.Client
	// MinRefreshInterval throttles refreshes triggered by unknown key ids.
	// Non-positive values use 10s.
	MinRefreshInterval time.Duration
}

// RemoteKeySet caches a provider's signing keys by key id and refetches the
// set when an unknown id shows up. Concurrent refreshes share one request.
type RemoteKeySet struct {
	url        string
	client     *http.Client
	minRefresh time.Duration
	now        func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	keys      []jose.JSONWebKey
	fetchedAt time.Time
}

// NewRemoteKeySet constructs a key set for the given JWKS URL.
func NewRemoteKeySet(cfg KeySetConfig) *RemoteKeySet {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	minRefresh := cfg.MinRefreshInterval
	if minRefresh <= 0 {
		minRefresh = defaultMinRefresh
	}
	return &RemoteKeySet{
		url:        cfg.URL,
		client:     client,
		minRefresh: minRefresh,
		now:        time.Now,
	}
}

// VerifySignature implements oidc.KeySet. Failures wrap ErrMalformedToken,
// ErrInvalidSignature or ErrKeySetUnavailable.
func (s *RemoteKeySet) VerifySignature(ctx context.Context, rawJWT string) ([]byte, error) {
	jws, err := jose.ParseSigned(rawJWT, allowedAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainauth.ErrMalformedToken, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%w: expected one signature", domainauth.ErrMalformedToken)
	}

	kid := jws.Signatures[0].Header.KeyID
	keys, err := s.KeysFor(ctx, kid)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if payload, verr := jws.Verify(k.Key); verr == nil {
			return payload, nil
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no key for kid %q", domainauth.ErrInvalidSignature, kid)
	}
	return nil, fmt.Errorf("%w: verification failed", domainauth.ErrInvalidSignature)
}

// KeysFor returns the candidate verification keys for kid. An empty kid
// yields every cached key. A nil slice with nil error means the key is
// unknown to the provider.
func (s *RemoteKeySet) KeysFor(ctx context.Context, kid string) ([]jose.JSONWebKey, error) {
	keys, fetchedAt := s.cached(kid)
	if len(keys) > 0 {
		return keys, nil
	}
	if !fetchedAt.IsZero() && s.now().Sub(fetchedAt) < s.minRefresh {
		return nil, nil
	}

	if err := s.refresh(ctx, fetchedAt); err != nil {
		return nil, err
	}
	keys, _ = s.cached(kid)
	return keys, nil
}

func (s *RemoteKeySet) cached(kid string) ([]jose.JSONWebKey, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if kid == "" {
		return append([]jose.JSONWebKey(nil), s.keys...), s.fetchedAt
	}
	var out []jose.JSONWebKey
	for _, k := range s.keys {
		if k.KeyID == kid {
			out = append(out, k)
		}
	}
	return out, s.fetchedAt
}

// refresh fetches the key set unless another caller already did so after seen.
func (s *RemoteKeySet) refresh(ctx context.Context, seen time.Time) error {
	ch := s.group.DoChan("jwks", func() (any, error) {
		s.mu.RLock()
		fresh := s.fetchedAt.After(seen)
		s.mu.RUnlock()
		if fresh {
			return nil, nil
		}
		// Detached from the first caller so its cancellation does not fail the others.
		keys, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.keys = keys
		s.fetchedAt = s.now()
		s.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domainauth.ErrKeySetUnavailable, ctx.Err())
	}
}

func (s *RemoteKeySet) fetch(ctx context.Context) ([]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domainauth.ErrKeySetUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainauth.ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", domainauth.ErrKeySetUnavailable, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode key set: %w", domainauth.ErrKeySetUnavailable, err)
	}

	keys := make([]jose.JSONWebKey, 0, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if !k.IsPublic() {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}
