package auth

import "time"

// AuthorizationState is the single-use record tying a callback to the login
// attempt that started it.
type AuthorizationState struct {
	State              string    `json:"state"`
	CodeVerifier       string    `json:"codeVerifier"`
	Nonce              string    `json:"nonce"`
	RedirectAfterLogin string    `json:"redirectAfterLogin,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// IsExpired reports whether the state is older than ttl.
func (s AuthorizationState) IsExpired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !s.CreatedAt.Add(ttl).After(now)
}

// OAuthSessionData is the server-side record for a federated login.
type OAuthSessionData struct {
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Provider  string   `json:"provider"`
	// PrincipalID and GroupPrincipalIDs are the principal store ids resolved at login.
	PrincipalID       string    `json:"principalId,omitempty"`
	GroupPrincipalIDs []string  `json:"groupPrincipalIds,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

// IsExpired reports whether the session has reached its expiry.
func (s OAuthSessionData) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// ValidatedIDToken holds the claims of an ID token that passed validation.
type ValidatedIDToken struct {
	Subject   string
	Email     string
	Name      string
	Groups    []string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RawClaims map[string]any
}

// PrincipalKind distinguishes users from groups in the principal store.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalGroup PrincipalKind = "group"
)

// ExternalPrincipal identifies a principal by its provider-side identifier.
type ExternalPrincipal struct {
	Kind        PrincipalKind
	ExternalID  string
	Provider    string
	DisplayName string
}

// Principal is a persisted user or group that permissions attach to.
type Principal struct {
	ID          string        `json:"id"          db:"id"`
	Kind        PrincipalKind `json:"kind"        db:"kind"`
	ExternalID  string        `json:"externalId"  db:"external_id"`
	Provider    string        `json:"provider"    db:"provider"`
	DisplayName string        `json:"displayName" db:"display_name"`
	CreatedAt   time.Time     `json:"createdAt"   db:"created_at"`
}

// UserAuthorization links a validated identity to its principals.
type UserAuthorization struct {
	UserPrincipalID   string
	GroupPrincipalIDs []string
	Subject           string
	Email             string
}
