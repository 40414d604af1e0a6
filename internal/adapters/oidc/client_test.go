package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
	"github.com/ragbox/ragbox/internal/testutil"
)

func TestDiscover(t *testing.T) {
	idp := testutil.NewIdP(t, "ragbox")

	for _, u := range []string{idp.Issuer, idp.Issuer + "/", idp.URL("/.well-known/openid-configuration")} {
		md, err := Discover(context.Background(), u, http.DefaultClient)
		require.NoError(t, err, u)
		assert.Equal(t, idp.Issuer, md.Issuer)
		assert.Equal(t, idp.URL("/authorize"), md.AuthURL)
		assert.Equal(t, idp.URL("/token"), md.TokenURL)
		assert.Equal(t, idp.URL("/jwks"), md.JWKSURL)
	}
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(context.Background(), " ", nil)
	assert.Error(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = Discover(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}

func TestNewClient_ValidationErrors(t *testing.T) {
	md := Metadata{AuthURL: "https://idp/authorize", TokenURL: "https://idp/token"}
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"missing client id", ClientConfig{RedirectURL: "http://localhost/cb", Metadata: md}},
		{"missing redirect", ClientConfig{ClientID: "c", Metadata: md}},
		{"missing endpoints", ClientConfig{ClientID: "c", RedirectURL: "http://localhost/cb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func newTestClient(t *testing.T, idp *testutil.IdP) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		ClientID:     idp.ClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/oauth/callback",
		Scope:        "openid email",
		Metadata:     Metadata{Issuer: idp.Issuer, AuthURL: idp.URL("/authorize"), TokenURL: idp.URL("/token"), JWKSURL: idp.URL("/jwks")},
		Timeout:      2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestClient_AuthCodeURL(t *testing.T) {
	idp := testutil.NewIdP(t, "ragbox")
	c := newTestClient(t, idp)
	verifier := oauth2.GenerateVerifier()

	raw := c.AuthCodeURL(ports.AuthCodeRequest{State: "state-123", CodeVerifier: verifier})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, idp.URL("/authorize"), u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), q.Get("code_challenge"))
	assert.Equal(t, "openid email", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/oauth/callback", q.Get("redirect_uri"))
	assert.NotContains(t, raw, verifier, "verifier never leaves the server")
	assert.False(t, q.Has("nonce"))

	withNonce, err := url.Parse(c.AuthCodeURL(ports.AuthCodeRequest{State: "s", CodeVerifier: verifier, Nonce: "n-123"}))
	require.NoError(t, err)
	assert.Equal(t, "n-123", withNonce.Query().Get("nonce"))
}

func TestClient_Exchange(t *testing.T) {
	idp := testutil.NewIdP(t, "ragbox")
	c := newTestClient(t, idp)
	verifier := oauth2.GenerateVerifier()
	code := idp.IssueCode(idp.Claims("sub-1", "a@example.com"), oauth2.S256ChallengeFromVerifier(verifier))

	raw, err := c.Exchange(context.Background(), code, verifier)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestClient_ExchangeRejected(t *testing.T) {
	idp := testutil.NewIdP(t, "ragbox")
	c := newTestClient(t, idp)
	verifier := oauth2.GenerateVerifier()
	code := idp.IssueCode(idp.Claims("sub-1", "a@example.com"), oauth2.S256ChallengeFromVerifier(verifier))

	_, err := c.Exchange(context.Background(), code, oauth2.GenerateVerifier())
	assert.ErrorIs(t, err, domainauth.ErrCodeRejected, "wrong verifier")

	_, err = c.Exchange(context.Background(), "", verifier)
	assert.ErrorIs(t, err, domainauth.ErrCodeRejected, "empty code")
}

func TestClient_ExchangeProviderDown(t *testing.T) {
	idp := testutil.NewIdP(t, "ragbox")
	c := newTestClient(t, idp)
	idp.Server.Close()

	_, err := c.Exchange(context.Background(), "code", "verifier")
	assert.ErrorIs(t, err, domainauth.ErrProviderUnavailable)
}

func TestClient_ExchangeMissingIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{
		ClientID:    "ragbox",
		RedirectURL: "http://localhost/cb",
		Metadata:    Metadata{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"},
	})
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "code", "verifier")
	assert.ErrorIs(t, err, domainauth.ErrMalformedToken)
}
