package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

// ErrNotFound is returned by stores when a record is absent. Expired records
// that a store chooses to hide are reported the same way.
var ErrNotFound = errors.New("not found")

// ErrCapacityExceeded is returned by bounded stores that cannot accept more
// entries until some expire.
var ErrCapacityExceeded = errors.New("store capacity exceeded")

// AuthCodeRequest carries the values bound into an authorization URL.
type AuthCodeRequest struct {
	State        string
	CodeVerifier string
	Nonce        string
}

// AuthCodeClient builds authorization URLs and redeems authorization codes at
// the identity provider's token endpoint.
type AuthCodeClient interface {
	// AuthCodeURL returns the provider URL for a PKCE (S256) code flow.
	AuthCodeURL(req AuthCodeRequest) string

	// Exchange redeems code with the PKCE verifier and returns the raw ID token.
	Exchange(ctx context.Context, code, codeVerifier string) (rawIDToken string, err error)
}

// IDTokenValidator verifies an ID token's signature and standard claims.
type IDTokenValidator interface {
	Validate(ctx context.Context, rawIDToken string) (*domainauth.ValidatedIDToken, error)
}

// AuthStateStore keeps single-use authorization states.
type AuthStateStore interface {
	StoreAuthState(ctx context.Context, st domainauth.AuthorizationState) error

	// GetAndRemoveAuthState atomically returns and deletes the state. A second
	// call for the same state returns ErrNotFound.
	GetAndRemoveAuthState(ctx context.Context, state string) (*domainauth.AuthorizationState, error)
}

// SessionStore persists OAuth sessions. GetSession returns records even after
// ExpiresAt; callers decide what expiry means.
type SessionStore interface {
	CreateSession(ctx context.Context, sess domainauth.OAuthSessionData) error
	GetSession(ctx context.Context, id string) (*domainauth.OAuthSessionData, error)
	DeleteSession(ctx context.Context, id string) error
}

// SessionRegistry is the combined store used by the OIDC orchestrator.
type SessionRegistry interface {
	AuthStateStore
	SessionStore
}

// PrincipalStore resolves external identities to persisted principals.
type PrincipalStore interface {
	// GetOrCreate returns the id of the principal for (kind, provider, external id),
	// creating it on first sight. Repeated calls return the same id.
	GetOrCreate(ctx context.Context, p domainauth.ExternalPrincipal) (string, error)
	Lookup(ctx context.Context, id string) (*domainauth.Principal, error)
	List(ctx context.Context, kind domainauth.PrincipalKind) ([]*domainauth.Principal, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// UserRepository persists local accounts.
type UserRepository interface {
	Create(ctx context.Context, u *domainauth.User) error
	GetByID(ctx context.Context, id string) (*domainauth.User, error)
	GetByUsername(ctx context.Context, username string) (*domainauth.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Count(ctx context.Context) (int, error)
}

// AccessTokenRepository persists hashed access tokens.
type AccessTokenRepository interface {
	Create(ctx context.Context, t *domainauth.AccessToken) error
	GetByHash(ctx context.Context, hash string) (*domainauth.AccessToken, error)
	GetByID(ctx context.Context, id string) (*domainauth.AccessToken, error)
	List(ctx context.Context) ([]*domainauth.AccessToken, error)
	Delete(ctx context.Context, id string) (bool, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	// DeleteExpired removes tokens whose expiry is before cutoff and reports how many.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}
