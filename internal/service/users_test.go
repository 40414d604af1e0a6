package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbox/ragbox/internal/adapters/memory"
	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
)

func newTestUsers(t *testing.T) (*UserService, *memory.UserRepository, *CredentialService) {
	t.Helper()
	repo := memory.NewUserRepository()
	creds := newTestCredentials(t, 24*time.Hour)
	return NewUserService(UserServiceOptions{Users: repo, Credentials: creds}), repo, creds
}

func TestUserService_Login(t *testing.T) {
	svc, _, creds := newTestUsers(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "s3cret-pass", domainauth.RoleAdmin)
	require.NoError(t, err)

	res, err := svc.Login(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, domainauth.RoleAdmin, res.Role)
	assert.Equal(t, int64(86400), res.ExpiresIn)

	v := creds.ValidateToken(res.Token)
	assert.Equal(t, TokenValid, v.Status)
	assert.Equal(t, domainauth.RoleAdmin, v.Role)
}

func TestUserService_LoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestUsers(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "s3cret-pass", domainauth.RoleUser)
	require.NoError(t, err)

	_, wrongPass := svc.Login(ctx, "alice", "nope-nope")
	_, unknown := svc.Login(ctx, "mallory", "nope-nope")
	_, empty := svc.Login(ctx, "", "")

	for _, err := range []error{wrongPass, unknown, empty} {
		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthorized(err))
		assert.Equal(t, wrongPass.Error(), err.Error())
	}
}

func TestUserService_Me(t *testing.T) {
	svc, _, _ := newTestUsers(t)
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, "bob", "password1", domainauth.RoleUser)
	require.NoError(t, err)

	got, err := svc.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	_, err = svc.Me(ctx, "deleted-user")
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestUserService_ChangePassword(t *testing.T) {
	svc, _, _ := newTestUsers(t)
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, "carol", "old-password", domainauth.RoleUser)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, u.ID, "wrong-password", "new-password")
	assert.True(t, apperrors.IsUnauthorized(err))

	err = svc.ChangePassword(ctx, u.ID, "old-password", "short")
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "newPassword", apperrors.GetField(err))

	err = svc.ChangePassword(ctx, u.ID, "old-password", strings.Repeat("x", 129))
	assert.True(t, apperrors.IsValidation(err))

	err = svc.ChangePassword(ctx, u.ID, "old-password", "old-password")
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "old-password", "new-password"))
	_, err = svc.Login(ctx, "carol", "old-password")
	assert.True(t, apperrors.IsUnauthorized(err))
	_, err = svc.Login(ctx, "carol", "new-password")
	assert.NoError(t, err)
}

func TestUserService_CreateUserValidation(t *testing.T) {
	svc, _, _ := newTestUsers(t)
	ctx := context.Background()

	tests := []struct {
		name, username, password string
		role                     domainauth.Role
		field                    string
	}{
		{"short username", "ab", "password1", domainauth.RoleUser, "username"},
		{"bad chars", "bad name!", "password1", domainauth.RoleUser, "username"},
		{"long username", strings.Repeat("a", 65), "password1", domainauth.RoleUser, "username"},
		{"short password", "dave", "short", domainauth.RoleUser, "password"},
		{"bad role", "dave", "password1", domainauth.Role("guest"), "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tt.username, tt.password, tt.role)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}

	_, err := svc.CreateUser(ctx, "dave.o-k_1", "password1", domainauth.RoleUser)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "dave.o-k_1", "password1", domainauth.RoleUser)
	assert.True(t, apperrors.IsConflict(err))
}

func TestUserService_EnsureBootstrapAdmin(t *testing.T) {
	svc, repo, _ := newTestUsers(t)
	ctx := context.Background()

	created, err := svc.EnsureBootstrapAdmin(ctx, "admin", "")
	require.NoError(t, err)
	assert.False(t, created, "no password configured")

	created, err = svc.EnsureBootstrapAdmin(ctx, "admin", "bootstrap-pass")
	require.NoError(t, err)
	assert.True(t, created)

	u, err := repo.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, u.Role)

	created, err = svc.EnsureBootstrapAdmin(ctx, "admin2", "bootstrap-pass")
	require.NoError(t, err)
	assert.False(t, created, "users already exist")
}
