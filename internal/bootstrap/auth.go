package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ragbox/ragbox/config"
	"github.com/ragbox/ragbox/internal/adapters/authroles"
	"github.com/ragbox/ragbox/internal/adapters/oidc"
	httpx "github.com/ragbox/ragbox/internal/http"
	"github.com/ragbox/ragbox/internal/observability/metrics"
	"github.com/ragbox/ragbox/internal/service"
)

// AuthDeps contains dependencies for BuildAuth.
type AuthDeps struct {
	Config config.AuthConfig
	Stores *Stores
	// HTTPClient is used for provider discovery, key fetches and code exchange.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// AuthComponents is the authentication stack for one mode. Only the fields
// the mode needs are set; Tokens is always set.
type AuthComponents struct {
	Authenticator httpx.ModeAuthenticator
	Users         *service.UserService
	OAuth         *service.OIDCService
	Tokens        *service.AccessTokenService
}

// BuildAuth wires the authenticator for the configured mode.
func BuildAuth(ctx context.Context, deps AuthDeps) (*AuthComponents, error) {
	if deps.Stores == nil {
		return nil, errors.New("auth: stores are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := &AuthComponents{
		Tokens: service.NewAccessTokenService(service.AccessTokenServiceOptions{
			Repo:    deps.Stores.Tokens,
			Logger:  logger,
			Metrics: deps.Metrics,
		}),
	}

	switch deps.Config.Mode {
	case config.AuthModeOpen:
		logger.WarnContext(ctx, "authentication disabled; every request is treated as admin", "auth_mode", deps.Config.Mode)
		out.Authenticator = httpx.OpenAuthenticator()
	case config.AuthModeBasic, "":
		users, err := buildBasic(ctx, deps, logger)
		if err != nil {
			return nil, err
		}
		out.Users = users.svc
		out.Authenticator = httpx.NewBasicAuthenticator(users.creds)
	case config.AuthModeOAuth:
		svc, err := buildOAuth(ctx, deps, logger)
		if err != nil {
			return nil, err
		}
		out.OAuth = svc
		out.Authenticator = httpx.NewOAuthAuthenticator(svc, authroles.NewStaticMapper(deps.Config.AdminGroup))
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", deps.Config.Mode)
	}
	return out, nil
}

// NewCredentialService builds the credential service for cfg. Without a
// configured secret a random one is generated, so tokens do not survive a
// restart.
func NewCredentialService(cfg config.AuthConfig, logger *slog.Logger) (*service.CredentialService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret := []byte(cfg.SessionToken.Secret)
	if len(secret) == 0 {
		generated, err := service.GenerateSessionSecret()
		if err != nil {
			return nil, err
		}
		logger.Warn("SESSION_TOKEN_SECRET not set; generated an ephemeral key, sessions end on restart")
		secret = generated
	}
	return service.NewCredentialService(service.CredentialServiceOptions{
		Secret: secret,
		TTL:    cfg.SessionToken.TTL,
	}), nil
}

type basicStack struct {
	creds *service.CredentialService
	svc   *service.UserService
}

func buildBasic(ctx context.Context, deps AuthDeps, logger *slog.Logger) (basicStack, error) {
	creds, err := NewCredentialService(deps.Config, logger)
	if err != nil {
		return basicStack{}, err
	}
	svc := service.NewUserService(service.UserServiceOptions{
		Users:       deps.Stores.Users,
		Credentials: creds,
		Logger:      logger,
		Metrics:     deps.Metrics,
	})

	admin := deps.Config.BootstrapAdmin
	if _, err = svc.EnsureBootstrapAdmin(ctx, admin.Username, admin.Password); err != nil {
		return basicStack{}, fmt.Errorf("bootstrap admin: %w", err)
	}
	return basicStack{creds: creds, svc: svc}, nil
}

func buildOAuth(ctx context.Context, deps AuthDeps, logger *slog.Logger) (*service.OIDCService, error) {
	if deps.Stores.Registry == nil {
		return nil, errors.New("auth: oauth mode requires a session registry")
	}
	cfg := deps.Config.OAuth
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	meta, err := ResolveProviderMetadata(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "oidc provider configured", "issuer", meta.Issuer, "provider", cfg.ProviderName)

	client, err := oidc.NewClient(oidc.ClientConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scope:        cfg.Scope,
		Metadata:     meta,
		HTTPClient:   httpClient,
		Timeout:      cfg.HTTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc client: %w", err)
	}
	validator, err := oidc.NewValidator(oidc.ValidatorConfig{
		Issuer:    meta.Issuer,
		ClientID:  cfg.ClientID,
		ClockSkew: cfg.ClockSkew,
		Claims: oidc.ClaimMapping{
			Email:  cfg.Claims.Email,
			Name:   cfg.Claims.Name,
			Groups: cfg.Claims.Groups,
		},
		KeySet: oidc.NewRemoteKeySet(oidc.KeySetConfig{
			URL:                meta.JWKSURL,
			HTTPClient:         httpClient,
			MinRefreshInterval: cfg.JWKSMinRefresh,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("oidc validator: %w", err)
	}

	return service.NewOIDCService(service.OIDCServiceOptions{
		Client:        client,
		Validator:     validator,
		Registry:      deps.Stores.Registry,
		Mapper:        service.NewClaimMapper(deps.Stores.Principals, cfg.ProviderName),
		Provider:      cfg.ProviderName,
		SessionMaxAge: cfg.SessionMaxAge,
		Logger:        logger,
		Metrics:       deps.Metrics,
	}), nil
}

// ResolveProviderMetadata fetches the discovery document when one is
// configured and otherwise uses the explicit endpoints.
func ResolveProviderMetadata(ctx context.Context, cfg config.OAuthConfig, client *http.Client) (oidc.Metadata, error) {
	if cfg.UsesDiscovery() {
		meta, err := oidc.Discover(ctx, cfg.DiscoveryURL, client)
		if err != nil {
			return oidc.Metadata{}, fmt.Errorf("resolve provider metadata: %w", err)
		}
		return meta, nil
	}
	meta := oidc.Metadata{
		Issuer:   cfg.Issuer,
		AuthURL:  cfg.AuthURL,
		TokenURL: cfg.TokenURL,
		JWKSURL:  cfg.JWKSURL,
	}
	if err := meta.Validate(); err != nil {
		return oidc.Metadata{}, fmt.Errorf("oidc endpoints: %w", err)
	}
	return meta, nil
}
