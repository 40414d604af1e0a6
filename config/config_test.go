package config

import (
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestAuthMode_UnmarshalText(t *testing.T) {
	tests := []struct {
		input   string
		want    AuthMode
		wantErr bool
	}{
		{input: "open", want: AuthModeOpen},
		{input: "BASIC", want: AuthModeBasic},
		{input: " oauth ", want: AuthModeOAuth},
		{input: "mock", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var got AuthMode
			err := got.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Mode != AuthModeBasic {
		t.Errorf("expected default mode basic, got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.SessionToken.TTL != 24*time.Hour {
		t.Errorf("expected 24h session ttl, got %v", cfg.Auth.SessionToken.TTL)
	}
	if cfg.Auth.OAuth.Claims.Email != "email" || cfg.Auth.OAuth.Claims.Name != "name" ||
		cfg.Auth.OAuth.Claims.Groups != "groups" {
		t.Errorf("unexpected claim defaults: %+v", cfg.Auth.OAuth.Claims)
	}
	if cfg.Storage != StoragePostgres {
		t.Errorf("expected postgres storage, got %q", cfg.Storage)
	}
	if cfg.SessionStore != SessionStoreMemory {
		t.Errorf("expected memory session store, got %q", cfg.SessionStore)
	}
	if !cfg.HTTP.CookieSecure {
		t.Error("expected secure cookies by default")
	}
	if cfg.HTTP.MaxBodyBytes != 10<<20 {
		t.Errorf("expected 10MiB body limit, got %d", cfg.HTTP.MaxBodyBytes)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Max != 100 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestAppConfig_ParseOAuthEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "oauth")
	t.Setenv("AUTH_ADMIN_GROUP", "platform-admins")
	t.Setenv("OAUTH_CLIENT_ID", "ragbox")
	t.Setenv("OAUTH_CLIENT_SECRET", "super-secret")
	t.Setenv("OAUTH_REDIRECT_URL", "https://rag.example.com/oauth/callback")
	t.Setenv("OAUTH_DISCOVERY_URL", " https://login.example.com ")
	t.Setenv("OAUTH_CLAIM_GROUPS", "realm_access.roles")
	t.Setenv("OAUTH_SESSION_MAX_AGE", "2h")
	t.Setenv("SESSION_STORE", "redis")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Mode != AuthModeOAuth {
		t.Fatalf("expected oauth mode, got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.AdminGroup != "platform-admins" {
		t.Errorf("unexpected admin group %q", cfg.Auth.AdminGroup)
	}
	if cfg.Auth.OAuth.DiscoveryURL != "https://login.example.com" {
		t.Errorf("expected trimmed discovery url, got %q", cfg.Auth.OAuth.DiscoveryURL)
	}
	if cfg.Auth.OAuth.Claims.Groups != "realm_access.roles" {
		t.Errorf("unexpected groups claim %q", cfg.Auth.OAuth.Claims.Groups)
	}
	if cfg.Auth.OAuth.SessionMaxAge != 2*time.Hour {
		t.Errorf("unexpected session max age %v", cfg.Auth.OAuth.SessionMaxAge)
	}
	if cfg.SessionStore != SessionStoreRedis {
		t.Errorf("expected redis session store, got %q", cfg.SessionStore)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestAppConfig_InvalidEnum(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "sqlite")

	var cfg AppConfig
	if err := env.Parse(&cfg); err == nil {
		t.Fatal("expected parse error for unknown storage backend")
	}
}

func TestAuthConfig_SanitizeDefaultsTTL(t *testing.T) {
	cfg := AuthConfig{SessionToken: SessionTokenConfig{TTL: -time.Second}}
	cfg.Sanitize()

	if cfg.Mode != AuthModeBasic {
		t.Errorf("expected basic mode fallback, got %q", cfg.Mode)
	}
	if cfg.SessionToken.TTL != 24*time.Hour {
		t.Errorf("expected ttl fallback, got %v", cfg.SessionToken.TTL)
	}
}

func TestOAuthConfig_Validate(t *testing.T) {
	base := OAuthConfig{ClientID: "ragbox", RedirectURL: "https://rag.example.com/oauth/callback"}

	if err := (OAuthConfig{RedirectURL: base.RedirectURL, DiscoveryURL: "https://idp"}).Validate(); err == nil {
		t.Error("expected missing client id to fail")
	}

	explicit := base
	explicit.Issuer = "https://idp.example.com"
	explicit.AuthURL = "https://idp.example.com/authorize"
	err := explicit.Validate()
	if err == nil {
		t.Fatal("expected missing endpoints to fail")
	}
	if !strings.Contains(err.Error(), "OAUTH_JWKS_URL, OAUTH_TOKEN_URL") {
		t.Errorf("expected sorted missing endpoints in error, got %v", err)
	}

	explicit.TokenURL = "https://idp.example.com/token"
	explicit.JWKSURL = "https://idp.example.com/jwks"
	if err := explicit.Validate(); err != nil {
		t.Errorf("expected explicit endpoints to validate, got %v", err)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Prefix:        ".ragbox.",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.Prefix != "ragbox" {
		t.Fatalf("expected prefix dots trimmed, got %q", cfg.Prefix)
	}
}

func TestRateLimitConfig_Sanitize(t *testing.T) {
	cfg := RateLimitConfig{Max: -1, Window: 0, SweepInterval: 0}
	cfg.Sanitize()

	if cfg.Max != 100 || cfg.Window != time.Minute || cfg.SweepInterval != time.Minute {
		t.Errorf("unexpected sanitized limiter config: %+v", cfg)
	}
}

func TestTokenReaperConfig_Sanitize(t *testing.T) {
	cfg := TokenReaperConfig{Interval: -time.Second, Retention: -time.Hour}
	cfg.Sanitize()

	if cfg.Interval != time.Hour || cfg.Retention != 0 {
		t.Errorf("unexpected sanitized reaper config: %+v", cfg)
	}
}

func TestOAuthConfig_SanitizeDefaultsJWKSRefresh(t *testing.T) {
	cfg := OAuthConfig{JWKSMinRefresh: -time.Second}
	cfg.Sanitize()

	if cfg.JWKSMinRefresh != 10*time.Second {
		t.Errorf("expected 10s key set refresh floor, got %v", cfg.JWKSMinRefresh)
	}
}
