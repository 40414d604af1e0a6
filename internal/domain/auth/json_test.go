package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONKeysAreCamelCase(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	by := "admin"

	tests := []struct {
		name     string
		value    any
		wantKeys []string
		hidden   []string
	}{
		{
			name: "access token",
			value: AccessToken{
				ID: "t-1", Name: "ci", Scopes: []string{ScopeRead}, Collections: []string{"docs"},
				TokenHash: "secret", TokenPrefix: "rbx_abcd", CreatedBy: &by,
				ExpiresAt: &now, LastUsedAt: &now, CreatedAt: now,
			},
			wantKeys: []string{"id", "name", "scopes", "collections", "tokenPrefix", "createdBy", "expiresAt", "lastUsedAt", "createdAt"},
			hidden:   []string{"tokenHash", "TokenHash"},
		},
		{
			name:     "user",
			value:    User{ID: "u-1", Username: "alice", PasswordHash: "salt:hash", Role: RoleUser, CreatedAt: now},
			wantKeys: []string{"id", "username", "role", "createdAt"},
			hidden:   []string{"passwordHash", "PasswordHash"},
		},
		{
			name: "oauth session",
			value: OAuthSessionData{
				SessionID: "s-1", UserID: "u-1", Provider: "oidc", PrincipalID: "p-1",
				GroupPrincipalIDs: []string{"p-2"}, ExpiresAt: now, CreatedAt: now,
			},
			wantKeys: []string{"sessionId", "userId", "provider", "principalId", "groupPrincipalIds", "expiresAt", "createdAt"},
		},
		{
			name:     "authorization state",
			value:    AuthorizationState{State: "st", CodeVerifier: "cv", Nonce: "n", RedirectAfterLogin: "/", CreatedAt: now},
			wantKeys: []string{"state", "codeVerifier", "nonce", "redirectAfterLogin", "createdAt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.value)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(raw, &got))

			keys := make([]string, 0, len(got))
			for k := range got {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantKeys, keys)
			for _, k := range tt.hidden {
				assert.NotContains(t, got, k)
			}
		})
	}
}
