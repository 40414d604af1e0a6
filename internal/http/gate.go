package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ragbox/ragbox/config"
	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/observability/metrics"
	"github.com/ragbox/ragbox/internal/ports"
	"github.com/ragbox/ragbox/internal/service"
)

// SessionCookieName carries the OAuth session id.
const SessionCookieName = "ragbox_session"

// errInvalidCredential marks a presented credential that failed verification.
// Any other error from an authenticator is an infrastructure failure.
var errInvalidCredential = errors.New("invalid credential")

// Level is the access level a route demands.
type Level int

const (
	// LevelPublic admits everyone; a bad credential downgrades to anonymous.
	LevelPublic Level = iota
	// LevelAuthenticated requires a verified identity.
	LevelAuthenticated
	// LevelAdmin requires a verified identity with the admin role.
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelPublic:
		return "public"
	case LevelAuthenticated:
		return "authenticated"
	case LevelAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ModeAuthenticator resolves the caller for one authentication mode. It
// returns (nil, nil) when the request carries no credential for the mode.
type ModeAuthenticator interface {
	Mode() config.AuthMode
	Authenticate(r *http.Request) (*domainauth.Identity, error)
}

// SessionTokenValidator validates self-issued session tokens.
type SessionTokenValidator interface {
	ValidateToken(token string) service.TokenValidation
}

// SessionValidator resolves OAuth session ids.
type SessionValidator interface {
	ValidateSession(ctx context.Context, id string) (*domainauth.OAuthSessionData, error)
}

// AccessTokenValidator resolves raw access tokens.
type AccessTokenValidator interface {
	Validate(ctx context.Context, raw string) (*domainauth.AccessToken, error)
}

// Limiter admits or rejects a request for a client key.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

type openAuthenticator struct{}

// OpenAuthenticator admits every request as an anonymous administrator.
func OpenAuthenticator() ModeAuthenticator { return openAuthenticator{} }

func (openAuthenticator) Mode() config.AuthMode { return config.AuthModeOpen }

func (openAuthenticator) Authenticate(*http.Request) (*domainauth.Identity, error) {
	return openModeIdentity(), nil
}

// BasicAuthenticator accepts bearer session tokens minted by the credential service.
type BasicAuthenticator struct {
	tokens SessionTokenValidator
}

// NewBasicAuthenticator panics when tokens is nil.
func NewBasicAuthenticator(tokens SessionTokenValidator) *BasicAuthenticator {
	if tokens == nil {
		panic("NewBasicAuthenticator: tokens is required")
	}
	return &BasicAuthenticator{tokens: tokens}
}

func (a *BasicAuthenticator) Mode() config.AuthMode { return config.AuthModeBasic }

func (a *BasicAuthenticator) Authenticate(r *http.Request) (*domainauth.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil
	}
	v := a.tokens.ValidateToken(raw)
	if v.Status != service.TokenValid {
		return nil, fmt.Errorf("%w: session token %s", errInvalidCredential, v.Status)
	}
	return &domainauth.Identity{
		Kind:     domainauth.IdentityUser,
		ID:       v.UserID,
		Username: v.Username,
		Role:     v.Role,
	}, nil
}

// OAuthAuthenticator accepts the session cookie set by the OAuth callback.
type OAuthAuthenticator struct {
	sessions SessionValidator
	roles    ports.RoleMapper
}

// NewOAuthAuthenticator panics when a dependency is nil.
func NewOAuthAuthenticator(sessions SessionValidator, roles ports.RoleMapper) *OAuthAuthenticator {
	if sessions == nil {
		panic("NewOAuthAuthenticator: sessions is required")
	}
	if roles == nil {
		panic("NewOAuthAuthenticator: roles is required")
	}
	return &OAuthAuthenticator{sessions: sessions, roles: roles}
}

func (a *OAuthAuthenticator) Mode() config.AuthMode { return config.AuthModeOAuth }

func (a *OAuthAuthenticator) Authenticate(r *http.Request) (*domainauth.Identity, error) {
	// Only access tokens travel as bearer credentials in this mode, and the
	// gate handles those before calling us.
	if bearerToken(r) != "" {
		return nil, fmt.Errorf("%w: bearer session tokens are not accepted", errInvalidCredential)
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	sess, err := a.sessions.ValidateSession(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown or expired session", errInvalidCredential)
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}
	username := sess.Name
	if username == "" {
		username = sess.Email
	}
	return &domainauth.Identity{
		Kind:      domainauth.IdentityOAuth,
		ID:        sess.UserID,
		Username:  username,
		Email:     sess.Email,
		Role:      a.roles.Map(sess.Groups),
		SessionID: sess.SessionID,
	}, nil
}

// GateOptions groups dependencies for the request gate.
type GateOptions struct {
	Authenticator     ModeAuthenticator    // Required
	AccessTokens      AccessTokenValidator // Optional: rbx_ tokens are rejected when nil
	Limiter           Limiter              // Optional: no rate limiting when nil
	MaxBodyBytes      int64                // Optional: no body cap when zero
	TrustProxyHeaders bool
	Logger            *slog.Logger
	Metrics           *metrics.Recorder
}

// Gate authenticates, rate limits and authorizes every routed request.
type Gate struct {
	auth         ModeAuthenticator
	tokens       AccessTokenValidator
	limiter      Limiter
	maxBodyBytes int64
	trustProxy   bool
	logger       *slog.Logger
	metrics      *metrics.Recorder
}

// NewGate panics when no authenticator is supplied.
func NewGate(opts GateOptions) *Gate {
	if opts.Authenticator == nil {
		panic("NewGate: Authenticator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		auth:         opts.Authenticator,
		tokens:       opts.AccessTokens,
		limiter:      opts.Limiter,
		maxBodyBytes: opts.MaxBodyBytes,
		trustProxy:   opts.TrustProxyHeaders,
		logger:       logger.With("component", "request_gate"),
		metrics:      opts.Metrics,
	}
}

// Mode reports the authentication mode the gate enforces.
func (g *Gate) Mode() config.AuthMode { return g.auth.Mode() }

// Public wraps h for routes anyone may call.
func (g *Gate) Public(h http.Handler) http.Handler { return g.Protect(LevelPublic, h) }

// Authenticated wraps h for routes that require a verified identity.
func (g *Gate) Authenticated(h http.Handler) http.Handler {
	return g.Protect(LevelAuthenticated, h)
}

// Admin wraps h for routes that require the admin role.
func (g *Gate) Admin(h http.Handler) http.Handler { return g.Protect(LevelAdmin, h) }

// Protect wraps h with the full gate at the given level.
func (g *Gate) Protect(level Level, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.auth.Mode() == config.AuthModeOpen {
			if !g.limitBody(w, r) {
				return
			}
			h.ServeHTTP(w, r.WithContext(SetIdentityInContext(r.Context(), openModeIdentity())))
			return
		}

		id, ok := g.identify(w, r, level)
		if !ok {
			return
		}
		if !g.rateLimit(w, r, id) {
			return
		}
		if !g.limitBody(w, r) {
			return
		}
		if level == LevelAdmin && !id.IsAdmin() {
			g.reject(w, r, "forbidden", apperrors.Forbidden("Admin role required"))
			return
		}

		h.ServeHTTP(w, r.WithContext(SetIdentityInContext(r.Context(), id)))
	})
}

// identify resolves the caller. It writes the error response itself and
// returns false when the request must stop.
func (g *Gate) identify(w http.ResponseWriter, r *http.Request, level Level) (*domainauth.Identity, bool) {
	id, err := g.resolve(r)
	switch {
	case err == nil && id != nil:
		return id, true
	case level == LevelPublic:
		if err != nil {
			g.logger.DebugContext(r.Context(), "ignoring credential on public route", "path", r.URL.Path, "error", err)
		}
		return anonymousIdentity(), true
	case err == nil:
		g.reject(w, r, "missing_credential", apperrors.Unauthorized("Authentication required"))
		return nil, false
	case errors.Is(err, errInvalidCredential):
		g.logger.InfoContext(r.Context(), "credential rejected", "path", r.URL.Path, "error", err)
		g.reject(w, r, "invalid_credential", apperrors.Unauthorized("Invalid or expired credentials"))
		return nil, false
	default:
		g.metrics.GateRejected("error")
		WriteAppError(w, r, g.logger, err)
		return nil, false
	}
}

func (g *Gate) resolve(r *http.Request) (*domainauth.Identity, error) {
	raw := bearerToken(r)
	if !strings.HasPrefix(raw, domainauth.AccessTokenPrefix) {
		return g.auth.Authenticate(r)
	}
	if g.tokens == nil {
		return nil, fmt.Errorf("%w: access tokens are not enabled", errInvalidCredential)
	}
	tok, err := g.tokens.Validate(r.Context(), raw)
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			return nil, fmt.Errorf("%w: %w", errInvalidCredential, err)
		}
		return nil, fmt.Errorf("validate access token: %w", err)
	}
	return &domainauth.Identity{
		Kind:        domainauth.IdentityToken,
		ID:          tok.ID,
		Username:    tok.Name,
		Role:        tok.Role(),
		Scopes:      tok.Scopes,
		Collections: tok.Collections,
		TokenID:     tok.ID,
	}, nil
}

func (g *Gate) rateLimit(w http.ResponseWriter, r *http.Request, id *domainauth.Identity) bool {
	if g.limiter == nil {
		return true
	}
	key := "ip:" + clientIP(r, g.trustProxy)
	if id.IsAuthenticated() {
		key = "id:" + string(id.Kind) + ":" + id.ID
	}
	allowed, retry := g.limiter.Allow(key)
	if allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retry)))
	g.reject(w, r, "rate_limited", apperrors.RateLimited("Too many requests"))
	return false
}

func (g *Gate) limitBody(w http.ResponseWriter, r *http.Request) bool {
	if g.maxBodyBytes <= 0 {
		return true
	}
	if r.ContentLength > g.maxBodyBytes {
		g.reject(w, r, "payload_too_large", apperrors.PayloadTooLarge("Request body too large"))
		return false
	}
	if r.Body != nil && r.Body != http.NoBody {
		r.Body = http.MaxBytesReader(w, r.Body, g.maxBodyBytes)
	}
	return true
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, reason string, err *apperrors.AppError) {
	g.metrics.GateRejected(reason)
	g.logger.DebugContext(r.Context(), "request rejected",
		"path", r.URL.Path, "reason", reason, "status", statusFor(err.Code))
	WriteAppError(w, r, g.logger, err)
}

// RequireScope rejects access-token callers that lack scope. Other identities
// pass through unchanged. Must run behind the gate.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteAppError(w, r, nil, apperrors.Unauthorized("Authentication required"))
				return
			}
			if !id.HasScope(scope) {
				WriteAppError(w, r, nil, apperrors.Forbidden(fmt.Sprintf("Token lacks the %q scope", scope)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken returns the credential of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// clientIP returns the source address used for anonymous rate limiting.
// Forwarding headers are honored only when the deployment sits behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
