package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/observability/metrics"
	"github.com/ragbox/ragbox/internal/ports"
)

const (
	stateBytes               = 32
	defaultSessionMaxAge     = 8 * time.Hour
	defaultPostLoginRedirect = "/"
)

// OIDCServiceOptions groups dependencies for OIDCService.
type OIDCServiceOptions struct {
	Client        ports.AuthCodeClient   // Required
	Validator     ports.IDTokenValidator // Required
	Registry      ports.SessionRegistry  // Required
	Mapper        *ClaimMapper           // Required
	Provider      string
	SessionMaxAge time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Recorder
}

// OIDCService runs the authorization code flow with PKCE and manages the
// resulting server-side sessions.
type OIDCService struct {
	client    ports.AuthCodeClient
	validator ports.IDTokenValidator
	registry  ports.SessionRegistry
	mapper    *ClaimMapper
	provider  string
	maxAge    time.Duration
	logger    *slog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

// NewOIDCService constructs an OIDCService.
func NewOIDCService(opts OIDCServiceOptions) *OIDCService {
	if opts.Client == nil || opts.Validator == nil || opts.Registry == nil || opts.Mapper == nil {
		panic("oidc service requires client, validator, registry and mapper")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAge := opts.SessionMaxAge
	if maxAge <= 0 {
		maxAge = defaultSessionMaxAge
	}
	return &OIDCService{
		client:    opts.Client,
		validator: opts.Validator,
		registry:  opts.Registry,
		mapper:    opts.Mapper,
		provider:  opts.Provider,
		maxAge:    maxAge,
		logger:    logger.With("component", "oidc_service"),
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// SessionMaxAge is the lifetime given to new sessions.
func (s *OIDCService) SessionMaxAge() time.Duration { return s.maxAge }

// LoginStart is returned by InitiateLogin.
type LoginStart struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

// InitiateLogin records a fresh authorization state and returns the URL the
// browser should visit. redirectAfterLogin is kept only when it is a relative
// path on this origin.
func (s *OIDCService) InitiateLogin(ctx context.Context, redirectAfterLogin string) (*LoginStart, error) {
	state, err := randomState()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to start login")
	}
	nonce, err := randomState()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to start login")
	}
	verifier := oauth2.GenerateVerifier()

	st := domainauth.AuthorizationState{
		State:              state,
		CodeVerifier:       verifier,
		Nonce:              nonce,
		RedirectAfterLogin: SafeRedirect(redirectAfterLogin),
		CreatedAt:          s.now().UTC(),
	}
	if storeErr := s.registry.StoreAuthState(ctx, st); storeErr != nil {
		if errors.Is(storeErr, ports.ErrCapacityExceeded) {
			s.logger.WarnContext(ctx, "login rejected: too many pending authorization states")
			return nil, apperrors.Wrap(storeErr, apperrors.ErrCodeUnavailable, "Too many pending logins, try again later")
		}
		return nil, apperrors.Wrap(storeErr, apperrors.ErrCodeInternal, "Failed to start login")
	}

	return &LoginStart{
		AuthorizationURL: s.client.AuthCodeURL(ports.AuthCodeRequest{State: state, CodeVerifier: verifier, Nonce: nonce}),
		State:            state,
	}, nil
}

// CallbackInput carries the query parameters of the provider's redirect.
type CallbackInput struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult is the established session and where to send the browser.
type CallbackResult struct {
	Session            *domainauth.OAuthSessionData
	RedirectAfterLogin string
}

// HandleCallback consumes the authorization state, redeems the code and
// persists a session. Nothing is stored unless every step succeeds.
func (s *OIDCService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if in.State == "" {
		return nil, s.loginFailed(ctx, "missing_state", nil)
	}

	st, err := s.registry.GetAndRemoveAuthState(ctx, in.State)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, s.loginFailed(ctx, "unknown_state", nil)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Login failed")
	}

	if in.Error != "" {
		s.logger.WarnContext(ctx, "identity provider returned an error",
			"error_code", in.Error, "error_description", in.ErrorDescription)
		return nil, s.loginFailed(ctx, "provider_error", nil)
	}
	if in.Code == "" {
		return nil, s.loginFailed(ctx, "missing_code", nil)
	}

	rawIDToken, err := s.client.Exchange(ctx, in.Code, st.CodeVerifier)
	if err != nil {
		return nil, s.upstreamFailed(ctx, "exchange", err)
	}

	tok, err := s.validator.Validate(ctx, rawIDToken)
	if err != nil {
		s.metrics.OIDCValidationFailed(err)
		return nil, s.upstreamFailed(ctx, "validate", err)
	}

	if !nonceMatches(st.Nonce, tok.Nonce) {
		s.metrics.OIDCValidationFailed(domainauth.ErrNonceMismatch)
		return nil, s.upstreamFailed(ctx, "validate", domainauth.ErrNonceMismatch)
	}

	authz, err := s.mapper.MapToAuthorization(ctx, tok)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Login failed")
	}

	sess := s.mapper.MapToSessionData(tok, uuid.NewString(), s.provider, s.maxAge)
	sess.PrincipalID = authz.UserPrincipalID
	sess.GroupPrincipalIDs = authz.GroupPrincipalIDs
	if createErr := s.registry.CreateSession(ctx, sess); createErr != nil {
		return nil, apperrors.Wrap(createErr, apperrors.ErrCodeInternal, "Login failed")
	}

	s.metrics.Login("oauth", metrics.ResultSuccess, nil)
	s.logger.InfoContext(ctx, "oauth login succeeded", "user_id", sess.UserID, "groups", len(sess.Groups))

	redirect := st.RedirectAfterLogin
	if redirect == "" {
		redirect = defaultPostLoginRedirect
	}
	return &CallbackResult{Session: &sess, RedirectAfterLogin: redirect}, nil
}

// ValidateSession returns the live session for id. Missing and expired
// sessions both yield ports.ErrNotFound.
func (s *OIDCService) ValidateSession(ctx context.Context, id string) (*domainauth.OAuthSessionData, error) {
	if id == "" {
		return nil, ports.ErrNotFound
	}
	sess, err := s.registry.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.IsExpired(s.now()) {
		return nil, ports.ErrNotFound
	}
	return sess, nil
}

// Logout removes the session. Unknown ids succeed.
func (s *OIDCService) Logout(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.registry.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *OIDCService) loginFailed(ctx context.Context, reason string, err error) error {
	s.logger.InfoContext(ctx, "oauth callback rejected", "reason", reason)
	s.metrics.Login("oauth", metrics.ResultFailure, err)
	return apperrors.Unauthorized("Authentication failed")
}

// upstreamFailed maps exchange and validation errors: provider outages become
// 502s, everything else an opaque authentication failure.
func (s *OIDCService) upstreamFailed(ctx context.Context, step string, err error) error {
	reason := domainauth.ValidationReason(err)
	if errors.Is(err, domainauth.ErrProviderUnavailable) {
		s.logger.ErrorContext(ctx, "identity provider unavailable", "step", step, "error", err)
		s.metrics.Login("oauth", metrics.ResultError, err)
		return apperrors.Wrap(err, apperrors.ErrCodeProvider, "Identity provider unavailable")
	}
	s.logger.InfoContext(ctx, "oauth callback rejected", "step", step, "reason", reason)
	s.metrics.Login("oauth", metrics.ResultFailure, err)
	return &apperrors.AppError{Code: apperrors.ErrCodeUnauthorized, Message: "Authentication failed", Cause: err}
}

// nonceMatches compares the nonce bound at login with the ID token's claim.
// An empty expected nonce never matches.
func nonceMatches(want, got string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func randomState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SafeRedirect returns target when it is a same-origin relative path and ""
// otherwise. Scheme-relative ("//host") and backslash tricks are rejected.
func SafeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") {
		return ""
	}
	if strings.HasPrefix(target, "//") || strings.ContainsAny(target, "\\\r\n\t") {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return target
}
