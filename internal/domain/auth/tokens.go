package auth

import (
	"slices"
	"time"
)

// AccessTokenPrefix marks raw access tokens so the request gate can dispatch on it.
const AccessTokenPrefix = "rbx_"

// Access token scopes.
const (
	ScopeRead   = "read"
	ScopeWrite  = "write"
	ScopeQuery  = "query"
	ScopeIngest = "ingest"
	ScopeAdmin  = "admin"
)

// ValidScopes lists every scope an access token may carry.
func ValidScopes() []string {
	return []string{ScopeRead, ScopeWrite, ScopeQuery, ScopeIngest, ScopeAdmin}
}

// IsValidScope reports whether s is a known scope.
func IsValidScope(s string) bool {
	return slices.Contains(ValidScopes(), s)
}

// AccessToken is a long-lived credential for non-interactive clients.
// Only the SHA-256 hash of the raw value is persisted.
type AccessToken struct {
	ID          string     `json:"id"                    db:"id"`
	Name        string     `json:"name"                  db:"name"`
	Scopes      []string   `json:"scopes"                db:"scopes"`
	Collections []string   `json:"collections,omitempty" db:"collections"`
	TokenHash   string     `json:"-"                     db:"token_hash"`
	TokenPrefix string     `json:"tokenPrefix"           db:"token_prefix"`
	CreatedBy   *string    `json:"createdBy,omitempty"   db:"created_by"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"   db:"expires_at"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"  db:"last_used_at"`
	CreatedAt   time.Time  `json:"createdAt"             db:"created_at"`
}

// IsExpired reports whether the token has an expiry at or before now.
func (t AccessToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Role derives the role granted to callers presenting this token.
func (t AccessToken) Role() Role {
	if slices.Contains(t.Scopes, ScopeAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// CreateAccessTokenInput is the validated input for minting a token.
type CreateAccessTokenInput struct {
	Name        string     `json:"name"`
	Scopes      []string   `json:"scopes"`
	Collections []string   `json:"collections,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedBy   *string    `json:"-"`
}
