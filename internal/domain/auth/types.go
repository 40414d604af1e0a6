package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"slices"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and token claims.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is a locally managed account used by basic authentication.
// PasswordHash is always in salt:hash form and never leaves the service layer.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Role         Role      `json:"role"      db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// IdentityKind names the credential that produced an Identity.
type IdentityKind string

const (
	// IdentityAnonymous is used when authentication is disabled or a public route is hit without credentials.
	IdentityAnonymous IdentityKind = "anonymous"
	// IdentityUser comes from a basic-mode session token.
	IdentityUser IdentityKind = "user"
	// IdentityOAuth comes from an OIDC session cookie.
	IdentityOAuth IdentityKind = "oauth"
	// IdentityToken comes from a scoped access token.
	IdentityToken IdentityKind = "token"
)

// Identity is the request-scoped caller resolved by the request gate.
type Identity struct {
	Kind        IdentityKind
	ID          string
	Username    string
	Email       string
	Role        Role
	Scopes      []string
	Collections []string
	SessionID   string
	TokenID     string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// IsAuthenticated reports whether the identity came from a verified credential.
func (i Identity) IsAuthenticated() bool { return i.Kind != "" && i.Kind != IdentityAnonymous }

// HasScope reports whether the identity may act with the given scope.
// Non-token identities are not scope restricted.
func (i Identity) HasScope(scope string) bool {
	if i.Kind != IdentityToken {
		return true
	}
	return slices.Contains(i.Scopes, scope) || slices.Contains(i.Scopes, ScopeAdmin)
}

// CanAccessCollection reports whether the identity may touch the named collection.
// A nil allow-list means unrestricted.
func (i Identity) CanAccessCollection(name string) bool {
	if i.Kind != IdentityToken || i.Collections == nil {
		return true
	}
	return slices.Contains(i.Collections, name)
}
