package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOpen disables authentication entirely. Every request is admitted.
	AuthModeOpen AuthMode = "open"
	// AuthModeBasic uses local username/password login and signed session tokens.
	AuthModeBasic AuthMode = "basic"
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "open", "basic", "oauth":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: open, basic, oauth)", v)
	}
}

const (
	defaultSessionTokenTTL = 24 * time.Hour
)

// SessionTokenConfig controls self-issued session tokens used in basic mode.
type SessionTokenConfig struct {
	// Secret is the HMAC key used to sign session tokens. When empty, a random
	// key is generated at startup and tokens do not survive restarts.
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL"    envDefault:"24h"`
}

// BootstrapAdminConfig describes the admin account created on an empty user store.
type BootstrapAdminConfig struct {
	Username string `env:"USERNAME" envDefault:"admin"`
	Password string `env:"PASSWORD"`
}

// ClaimsConfig maps ID token claims to identity attributes. Each value is a
// JMESPath expression evaluated against the decoded claim set.
type ClaimsConfig struct {
	Email  string `env:"EMAIL"  envDefault:"email"`
	Name   string `env:"NAME"   envDefault:"name"`
	Groups string `env:"GROUPS" envDefault:"groups"`
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/oauth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// Explicit endpoints, used when DiscoveryURL is empty.
	Issuer   string `env:"ISSUER"`
	AuthURL  string `env:"AUTH_URL"`
	TokenURL string `env:"TOKEN_URL"`
	JWKSURL  string `env:"JWKS_URL"`

	// ProviderName is recorded on sessions and principals.
	ProviderName string `env:"PROVIDER_NAME" envDefault:"oidc"`

	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT"    envDefault:"10s"`
	ClockSkew     time.Duration `env:"CLOCK_SKEW"      envDefault:"1m"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"8h"`
	AuthStateTTL  time.Duration `env:"AUTH_STATE_TTL"  envDefault:"10m"`
	// JWKSMinRefresh bounds how often an unknown key id may trigger a key set fetch.
	JWKSMinRefresh time.Duration `env:"JWKS_MIN_REFRESH" envDefault:"10s"`

	Claims ClaimsConfig `envPrefix:"CLAIM_"`
}

// UsesDiscovery reports whether provider metadata is fetched from a discovery document.
func (c OAuthConfig) UsesDiscovery() bool {
	return strings.TrimSpace(c.DiscoveryURL) != ""
}

// Sanitize applies defaults to zero or negative durations.
func (c *OAuthConfig) Sanitize() {
	c.DiscoveryURL = strings.TrimSpace(c.DiscoveryURL)
	c.ProviderName = strings.TrimSpace(c.ProviderName)
	if c.ProviderName == "" {
		c.ProviderName = "oidc"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.ClockSkew < 0 {
		c.ClockSkew = 0
	}
	if c.SessionMaxAge <= 0 {
		c.SessionMaxAge = 8 * time.Hour
	}
	if c.AuthStateTTL <= 0 {
		c.AuthStateTTL = 10 * time.Minute
	}
	if c.JWKSMinRefresh <= 0 {
		c.JWKSMinRefresh = 10 * time.Second
	}
	if strings.TrimSpace(c.Claims.Email) == "" {
		c.Claims.Email = "email"
	}
	if strings.TrimSpace(c.Claims.Name) == "" {
		c.Claims.Name = "name"
	}
	if strings.TrimSpace(c.Claims.Groups) == "" {
		c.Claims.Groups = "groups"
	}
}

// Validate ensures the OAuth configuration is usable.
func (c OAuthConfig) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("OAUTH_CLIENT_ID is required in oauth mode")
	}
	if strings.TrimSpace(c.RedirectURL) == "" {
		return errors.New("OAUTH_REDIRECT_URL is required in oauth mode")
	}
	if c.UsesDiscovery() {
		return nil
	}
	var missing []string
	for name, v := range map[string]string{
		"OAUTH_ISSUER":    c.Issuer,
		"OAUTH_AUTH_URL":  c.AuthURL,
		"OAUTH_TOKEN_URL": c.TokenURL,
		"OAUTH_JWKS_URL":  c.JWKSURL,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("oauth mode requires OAUTH_DISCOVERY_URL or %s", strings.Join(missing, ", "))
	}
	return nil
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authenticator guards the API.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"basic"`

	// AdminGroup is the OIDC group whose members receive the admin role.
	AdminGroup string `env:"AUTH_ADMIN_GROUP" envDefault:"ragbox-admins"`

	SessionToken   SessionTokenConfig   `envPrefix:"SESSION_TOKEN_"`
	BootstrapAdmin BootstrapAdminConfig `envPrefix:"BOOTSTRAP_ADMIN_"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`
}

// Sanitize applies mode and token lifetime defaults.
func (c *AuthConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = AuthModeBasic
	}
	if c.SessionToken.TTL <= 0 {
		c.SessionToken.TTL = defaultSessionTokenTTL
	}
	c.BootstrapAdmin.Username = strings.TrimSpace(c.BootstrapAdmin.Username)
	c.OAuth.Sanitize()
}

// Validate checks mode-specific requirements.
func (c AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeOpen, AuthModeBasic:
		return nil
	case AuthModeOAuth:
		return c.OAuth.Validate()
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Mode)
	}
}
