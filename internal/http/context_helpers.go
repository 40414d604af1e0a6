package httpx

import (
	"context"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

// identityKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type identityKey struct{}

// SetIdentityInContext returns a child context that carries the given identity.
// If id is nil, the original ctx is returned unchanged.
func SetIdentityInContext(ctx context.Context, id *domainauth.Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity resolved by the gate and a
// boolean indicating presence.
func IdentityFromContext(ctx context.Context) (*domainauth.Identity, bool) {
	if id, ok := ctx.Value(identityKey{}).(*domainauth.Identity); ok && id != nil {
		return id, true
	}
	return nil, false
}

// anonymousIdentity is attached to public requests that carried no usable credential.
func anonymousIdentity() *domainauth.Identity {
	return &domainauth.Identity{Kind: domainauth.IdentityAnonymous}
}

// openModeIdentity is attached to every request when authentication is disabled.
func openModeIdentity() *domainauth.Identity {
	return &domainauth.Identity{
		Kind:     domainauth.IdentityAnonymous,
		ID:       "anonymous",
		Username: "anonymous",
		Role:     domainauth.RoleAdmin,
	}
}
