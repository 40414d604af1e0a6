package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"net/url"
	"sync"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthCodeClient   = (*AuthCodeClient)(nil)
	_ ports.IDTokenValidator = (*IDTokenValidator)(nil)
	_ ports.SessionRegistry  = (*FaultyRegistry)(nil)
)

// AuthCodeClient records authorization requests and returns a canned ID token.
type AuthCodeClient struct {
	AuthURL      string
	IDToken      string
	ExchangeFunc func(ctx context.Context, code, verifier string) (string, error)

	mu        sync.Mutex
	requests  []ports.AuthCodeRequest
	exchanges []string
}

// AuthCodeURL returns AuthURL with state and challenge so tests can inspect them.
func (c *AuthCodeClient) AuthCodeURL(req ports.AuthCodeRequest) string {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	base := c.AuthURL
	if base == "" {
		base = "https://idp.test/authorize"
	}
	q := url.Values{"state": {req.State}, "code_challenge_method": {"S256"}}
	if req.Nonce != "" {
		q.Set("nonce", req.Nonce)
	}
	return base + "?" + q.Encode()
}

// LastNonce returns the nonce of the most recent AuthCodeURL call.
func (c *AuthCodeClient) LastNonce() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return ""
	}
	return c.requests[len(c.requests)-1].Nonce
}

// Exchange delegates to ExchangeFunc when set and returns IDToken otherwise.
func (c *AuthCodeClient) Exchange(ctx context.Context, code, verifier string) (string, error) {
	c.mu.Lock()
	c.exchanges = append(c.exchanges, verifier)
	c.mu.Unlock()

	if c.ExchangeFunc != nil {
		return c.ExchangeFunc(ctx, code, verifier)
	}
	if c.IDToken == "" {
		return "raw-id-token", nil
	}
	return c.IDToken, nil
}

// Requests returns every request passed to AuthCodeURL.
func (c *AuthCodeClient) Requests() []ports.AuthCodeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.AuthCodeRequest(nil), c.requests...)
}

// Verifiers returns the code verifiers passed to Exchange, in call order.
func (c *AuthCodeClient) Verifiers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.exchanges...)
}

// IDTokenValidator returns Token or Err for every input. When Nonce is set
// the returned token carries its result, the way a provider echoes the nonce
// from the authorization request.
type IDTokenValidator struct {
	Token *domainauth.ValidatedIDToken
	Err   error
	Nonce func() string
}

func (v *IDTokenValidator) Validate(_ context.Context, raw string) (*domainauth.ValidatedIDToken, error) {
	if v.Err != nil {
		return nil, v.Err
	}
	if v.Token == nil {
		return nil, errors.New("no token configured")
	}
	cp := *v.Token
	if v.Nonce != nil {
		cp.Nonce = v.Nonce()
	}
	return &cp, nil
}

// FaultyRegistry wraps a registry and injects errors on selected calls.
type FaultyRegistry struct {
	ports.SessionRegistry

	StoreErr  error
	CreateErr error
	GetErr    error
}

func (r *FaultyRegistry) StoreAuthState(ctx context.Context, st domainauth.AuthorizationState) error {
	if r.StoreErr != nil {
		return r.StoreErr
	}
	return r.SessionRegistry.StoreAuthState(ctx, st)
}

func (r *FaultyRegistry) CreateSession(ctx context.Context, sess domainauth.OAuthSessionData) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	return r.SessionRegistry.CreateSession(ctx, sess)
}

func (r *FaultyRegistry) GetSession(ctx context.Context, id string) (*domainauth.OAuthSessionData, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	return r.SessionRegistry.GetSession(ctx, id)
}
