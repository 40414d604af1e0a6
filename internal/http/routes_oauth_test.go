package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"

	"github.com/ragbox/ragbox/internal/adapters/authroles"
	"github.com/ragbox/ragbox/internal/adapters/memory"
	"github.com/ragbox/ragbox/internal/adapters/oidc"
	"github.com/ragbox/ragbox/internal/service"
	"github.com/ragbox/ragbox/internal/testutil"
)

type oauthApp struct {
	server   *httptest.Server
	idp      *testutil.IdP
	registry *memory.Registry
	browser  *http.Client
}

// newOAuthApp runs the full stack against an in-process identity provider.
// The browser follows redirects up to the callback and stops there so tests
// can inspect the final redirect.
func newOAuthApp(t *testing.T) *oauthApp {
	t.Helper()
	idp := testutil.NewIdP(t, "ragbox-test")

	var handler http.Handler
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	meta, err := oidc.Discover(t.Context(), idp.URL("/.well-known/openid-configuration"), nil)
	require.NoError(t, err)
	client, err := oidc.NewClient(oidc.ClientConfig{
		ClientID:    idp.ClientID,
		RedirectURL: server.URL + "/oauth/callback",
		Scope:       "openid email profile groups",
		Metadata:    meta,
		Timeout:     2 * time.Second,
	})
	require.NoError(t, err)
	validator, err := oidc.NewValidator(oidc.ValidatorConfig{
		Issuer:    meta.Issuer,
		ClientID:  idp.ClientID,
		ClockSkew: time.Minute,
		KeySet:    oidc.NewRemoteKeySet(oidc.KeySetConfig{URL: meta.JWKSURL}),
	})
	require.NoError(t, err)

	registry := memory.NewRegistry(memory.RegistryOptions{})
	oidcSvc := service.NewOIDCService(service.OIDCServiceOptions{
		Client:        client,
		Validator:     validator,
		Registry:      registry,
		Mapper:        service.NewClaimMapper(memory.NewPrincipalStore(), "test-idp"),
		Provider:      "test-idp",
		SessionMaxAge: time.Hour,
	})
	tokens := service.NewAccessTokenService(service.AccessTokenServiceOptions{Repo: memory.NewAccessTokenRepository()})
	gate := NewGate(GateOptions{
		Authenticator: NewOAuthAuthenticator(oidcSvc, authroles.NewStaticMapper("engineering")),
		AccessTokens:  tokens,
	})
	handler = NewRouter(RouterServices{Gate: gate, OAuth: oidcSvc, Tokens: tokens})

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	browser := &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			if req.URL.Path == "/oauth/callback" {
				return nil
			}
			return http.ErrUseLastResponse
		},
	}
	return &oauthApp{server: server, idp: idp, registry: registry, browser: browser}
}

func (a *oauthApp) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := a.browser.Get(a.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// login runs the browser flow and returns the callback's redirect response.
func (a *oauthApp) login(t *testing.T, redirect string) *http.Response {
	t.Helper()
	path := "/oauth/login"
	if redirect != "" {
		path += "?redirect=" + url.QueryEscape(redirect)
	}
	resp := a.get(t, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var start service.LoginStart
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&start))
	require.NotEmpty(t, start.State)

	cb, err := a.browser.Get(start.AuthorizationURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cb.Body.Close() })
	return cb
}

func (a *oauthApp) sessionCookie() *http.Cookie {
	u, _ := url.Parse(a.server.URL)
	for _, c := range a.browser.Jar.Cookies(u) {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestOAuthFlow_EndToEnd(t *testing.T) {
	app := newOAuthApp(t)

	cb := app.login(t, "/dashboard")
	require.Equal(t, http.StatusFound, cb.StatusCode)
	assert.Equal(t, "/dashboard", cb.Header.Get("Location"))

	var set *http.Cookie
	for _, c := range cb.Cookies() {
		if c.Name == SessionCookieName {
			set = c
		}
	}
	require.NotNil(t, set, "callback sets the session cookie")
	assert.True(t, set.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, set.SameSite)
	assert.Equal(t, "/", set.Path)
	assert.Equal(t, int(time.Hour.Seconds()), set.MaxAge)
	require.NotNil(t, app.sessionCookie())

	resp := app.get(t, "/oauth/userinfo")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info userInfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "browser@example.com", info.Email)
	assert.Equal(t, "Test User", info.Username)
	assert.Equal(t, "admin", string(info.Role), "engineering is an admin group")
	assert.NotEmpty(t, info.ID)

	// Admin routes accept the session cookie.
	resp = app.get(t, "/tokens")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, sessions := app.registry.Stats()
	assert.Equal(t, 1, sessions)

	logout, err := app.browser.Post(app.server.URL+"/oauth/logout", "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = logout.Body.Close() })
	require.Equal(t, http.StatusOK, logout.StatusCode)
	assert.Nil(t, app.sessionCookie(), "logout clears the cookie")

	_, sessions = app.registry.Stats()
	assert.Equal(t, 0, sessions)

	resp = app.get(t, "/oauth/userinfo")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
}

func TestOAuthFlow_NonAdminGroupIsUser(t *testing.T) {
	app := newOAuthApp(t)
	claims := app.idp.Claims("sub-2", "carol@example.com")
	claims["groups"] = []string{"sales"}
	app.idp.SetLoginClaims(claims)

	cb := app.login(t, "")
	require.Equal(t, http.StatusFound, cb.StatusCode)
	assert.Equal(t, "/", cb.Header.Get("Location"))

	resp := app.get(t, "/tokens")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOAuthFlow_UnsafeRedirectFallsBackToRoot(t *testing.T) {
	app := newOAuthApp(t)

	cb := app.login(t, "https://evil.example.com/phish")
	require.Equal(t, http.StatusFound, cb.StatusCode)
	assert.Equal(t, "/", cb.Header.Get("Location"))
}

func TestOAuthFlow_CallbackFailuresDoNotCreateSessions(t *testing.T) {
	app := newOAuthApp(t)

	cases := map[string]string{
		"unknown state":  "/oauth/callback?code=abc&state=never-issued",
		"missing state":  "/oauth/callback?code=abc",
		"provider error": "/oauth/callback?error=access_denied&state=x",
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			resp := app.get(t, path)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Nil(t, app.sessionCookie())
		})
	}

	// A state can only be redeemed once.
	resp := app.get(t, "/oauth/login")
	var start service.LoginStart
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&start))
	resp = app.get(t, "/oauth/callback?code=bogus&state="+url.QueryEscape(start.State))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the provider rejects the bogus code")
	resp = app.get(t, "/oauth/callback?code=bogus&state="+url.QueryEscape(start.State))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, sessions := app.registry.Stats()
	assert.Equal(t, 0, sessions)
}

func TestOAuthFlow_ExpiredIDTokenIsRejected(t *testing.T) {
	app := newOAuthApp(t)
	claims := app.idp.Claims("sub-3", "dave@example.com")
	claims["iat"] = time.Now().Add(-3 * time.Hour).Unix()
	claims["exp"] = time.Now().Add(-2 * time.Hour).Unix()
	app.idp.SetLoginClaims(claims)

	cb := app.login(t, "")
	assert.Equal(t, http.StatusUnauthorized, cb.StatusCode)
	assert.Nil(t, app.sessionCookie())
}

func TestOAuthFlow_ForeignNonceIsRejected(t *testing.T) {
	app := newOAuthApp(t)
	claims := app.idp.Claims("sub-4", "erin@example.com")
	claims["nonce"] = "nonce-from-another-login"
	app.idp.SetLoginClaims(claims)

	cb := app.login(t, "")
	assert.Equal(t, http.StatusUnauthorized, cb.StatusCode)
	assert.Nil(t, app.sessionCookie())
	_, sessions := app.registry.Stats()
	assert.Equal(t, 0, sessions)
}

func TestOAuthRoutes_BasicEndpointsAreAbsent(t *testing.T) {
	app := newOAuthApp(t)

	resp := app.get(t, "/auth/me")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
