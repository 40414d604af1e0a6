package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
)

// ClaimMapper turns validated ID tokens into principals and session records.
type ClaimMapper struct {
	principals ports.PrincipalStore
	provider   string
	now        func() time.Time
}

// NewClaimMapper constructs a ClaimMapper. provider names the identity
// provider principals are recorded under.
func NewClaimMapper(principals ports.PrincipalStore, provider string) *ClaimMapper {
	if principals == nil {
		panic("principal store is required")
	}
	return &ClaimMapper{principals: principals, provider: provider, now: time.Now}
}

// userKey is the stable external id for a token's user: email when present,
// the subject otherwise.
func userKey(tok *domainauth.ValidatedIDToken) string {
	if email := strings.TrimSpace(tok.Email); email != "" {
		return email
	}
	return tok.Subject
}

// MapToAuthorization resolves the user principal and one group principal per
// distinct non-blank group claim. Repeated calls for the same token return the
// same ids.
func (m *ClaimMapper) MapToAuthorization(ctx context.Context, tok *domainauth.ValidatedIDToken) (*domainauth.UserAuthorization, error) {
	if tok == nil {
		return nil, fmt.Errorf("map authorization: token is required")
	}

	userID, err := m.principals.GetOrCreate(ctx, domainauth.ExternalPrincipal{
		Kind:        domainauth.PrincipalUser,
		ExternalID:  userKey(tok),
		Provider:    m.provider,
		DisplayName: tok.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve user principal: %w", err)
	}

	groups := dedupeGroups(tok.Groups)
	groupIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		id, gErr := m.principals.GetOrCreate(ctx, domainauth.ExternalPrincipal{
			Kind:        domainauth.PrincipalGroup,
			ExternalID:  g,
			Provider:    m.provider,
			DisplayName: g,
		})
		if gErr != nil {
			return nil, fmt.Errorf("resolve group principal %q: %w", g, gErr)
		}
		groupIDs = append(groupIDs, id)
	}

	return &domainauth.UserAuthorization{
		UserPrincipalID:   userID,
		GroupPrincipalIDs: groupIDs,
		Subject:           tok.Subject,
		Email:             tok.Email,
	}, nil
}

// MapToSessionData builds the session record persisted after a login. An
// empty provider falls back to the mapper's own.
func (m *ClaimMapper) MapToSessionData(
	tok *domainauth.ValidatedIDToken,
	sessionID, provider string,
	maxAge time.Duration,
) domainauth.OAuthSessionData {
	if provider == "" {
		provider = m.provider
	}
	now := m.now().UTC()
	return domainauth.OAuthSessionData{
		SessionID: sessionID,
		UserID:    userKey(tok),
		Email:     tok.Email,
		Name:      tok.Name,
		Groups:    dedupeGroups(tok.Groups),
		Provider:  provider,
		ExpiresAt: now.Add(maxAge),
		CreatedAt: now,
	}
}

func dedupeGroups(groups []string) []string {
	seen := make(map[string]struct{}, len(groups))
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
