package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbox/ragbox/config"
	"github.com/ragbox/ragbox/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig(mode config.AuthMode) *config.AppConfig {
	cfg := &config.AppConfig{
		Storage: config.StorageMemory,
		Auth: config.AuthConfig{
			Mode: mode,
			BootstrapAdmin: config.BootstrapAdminConfig{
				Username: "admin",
				Password: "bootstrap-pass",
			},
		},
	}
	cfg.Sanitize()
	return cfg
}

func newTestApp(t *testing.T, cfg *config.AppConfig) *App {
	t.Helper()
	app, err := NewApp(t.Context(), AppDeps{Config: cfg, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewApp_ModeSelection(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		app := newTestApp(t, memoryConfig(config.AuthModeOpen))
		assert.Equal(t, config.AuthModeOpen, app.Auth.Authenticator.Mode())
		assert.Nil(t, app.Auth.Users)
		assert.Nil(t, app.Auth.OAuth)
		assert.NotNil(t, app.Auth.Tokens)
		assert.Nil(t, app.Stores.Registry)
	})

	t.Run("basic", func(t *testing.T) {
		app := newTestApp(t, memoryConfig(config.AuthModeBasic))
		assert.Equal(t, config.AuthModeBasic, app.Auth.Authenticator.Mode())
		assert.NotNil(t, app.Auth.Users)
		assert.Nil(t, app.Auth.OAuth)
		assert.Nil(t, app.Stores.Registry)
	})

	t.Run("oauth", func(t *testing.T) {
		idp := testutil.NewIdP(t, "ragbox-test")
		cfg := memoryConfig(config.AuthModeOAuth)
		cfg.Auth.OAuth.ClientID = idp.ClientID
		cfg.Auth.OAuth.RedirectURL = "http://localhost:8080/oauth/callback"
		cfg.Auth.OAuth.DiscoveryURL = idp.URL("/.well-known/openid-configuration")
		require.NoError(t, cfg.Validate())

		app := newTestApp(t, cfg)
		assert.Equal(t, config.AuthModeOAuth, app.Auth.Authenticator.Mode())
		assert.NotNil(t, app.Auth.OAuth)
		assert.Nil(t, app.Auth.Users)
		assert.NotNil(t, app.Stores.Registry)
	})
}

func TestNewApp_BasicModeBootstrapsAdmin(t *testing.T) {
	app := newTestApp(t, memoryConfig(config.AuthModeBasic))
	srv := httptest.NewServer(app.Handler)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/auth/login", "application/json",
		strings.NewReader(`{"username":"admin","password":"bootstrap-pass"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Token)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/tokens", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	tokens, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer tokens.Body.Close()
	assert.Equal(t, http.StatusOK, tokens.StatusCode, "bootstrap account is an admin")
}

func TestNewApp_OAuthDiscoveryFailure(t *testing.T) {
	cfg := memoryConfig(config.AuthModeOAuth)
	cfg.Auth.OAuth.ClientID = "ragbox"
	cfg.Auth.OAuth.DiscoveryURL = "http://127.0.0.1:1/.well-known/openid-configuration"

	_, err := NewApp(t.Context(), AppDeps{
		Config:     cfg,
		Logger:     quietLogger(),
		HTTPClient: &http.Client{Timeout: time.Second},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve provider metadata")
}

func TestNewApp_RequiresConfig(t *testing.T) {
	_, err := NewApp(t.Context(), AppDeps{})
	require.Error(t, err)
}

func TestOpenStores_UnsupportedBackend(t *testing.T) {
	cfg := memoryConfig(config.AuthModeBasic)
	cfg.Storage = "sqlite"
	_, err := OpenStores(t.Context(), StoresConfig{Config: cfg, Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage backend")
}

func TestApp_RunServesUntilCanceled(t *testing.T) {
	cfg := memoryConfig(config.AuthModeOpen)
	cfg.RateLimit.Enabled = true
	cfg.TokenReaper.Enabled = true
	app := newTestApp(t, cfg)
	require.NotNil(t, app.Limiter)
	require.NotNil(t, app.Reaper)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHealthzReportsMode(t *testing.T) {
	app := newTestApp(t, memoryConfig(config.AuthModeOpen))
	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","authMode":"open"}`, rec.Body.String())
}
