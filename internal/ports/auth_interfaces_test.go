package ports_test

import (
	"testing"

	"github.com/ragbox/ragbox/internal/adapters/authroles"
	"github.com/ragbox/ragbox/internal/adapters/memory"
	"github.com/ragbox/ragbox/internal/adapters/oidc"
	"github.com/ragbox/ragbox/internal/adapters/redis"
	"github.com/ragbox/ragbox/internal/data"
	mocks "github.com/ragbox/ragbox/internal/mocks"
	"github.com/ragbox/ragbox/internal/ports"
)

// This test only verifies that adapters and mocks conform to the ports at compile time.
func TestAdaptersImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.SessionRegistry = (*memory.Registry)(nil)
	var _ ports.SessionRegistry = (*redis.SessionStore)(nil)
	var _ ports.PrincipalStore = (*memory.PrincipalStore)(nil)
	var _ ports.PrincipalStore = (*data.PrincipalRepo)(nil)
	var _ ports.PrincipalStore = (*mocks.MockPrincipalStore)(nil)
	var _ ports.UserRepository = (*memory.UserRepository)(nil)
	var _ ports.UserRepository = (*data.UserRepo)(nil)
	var _ ports.AccessTokenRepository = (*memory.AccessTokenRepository)(nil)
	var _ ports.AccessTokenRepository = (*data.AccessTokenRepo)(nil)
	var _ ports.AccessTokenRepository = (*mocks.MockAccessTokenRepository)(nil)
	var _ ports.IDTokenValidator = (*oidc.Validator)(nil)
	var _ ports.AuthCodeClient = (*oidc.Client)(nil)
	var _ ports.RoleMapper = (*authroles.StaticMapper)(nil)
}
