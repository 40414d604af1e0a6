package httpx

import (
	"log/slog"
	"net/http"

	"github.com/ragbox/ragbox/config"
	apperrors "github.com/ragbox/ragbox/internal/errors"
)

// RouterServices holds all the services needed by the HTTP router.
// Users is required in basic mode and OAuth in oauth mode; Tokens is optional.
type RouterServices struct {
	Gate   *Gate
	Users  UserAccounts
	OAuth  OAuthFlow
	Tokens AccessTokenAdmin
	// Cookie attributes for the OAuth session cookie
	CookieDomain string
	CookieSecure bool
	Logger       *slog.Logger
}

// NewRouter creates the HTTP router. Only the endpoints of the gate's
// authentication mode are registered.
func NewRouter(services RouterServices) http.Handler {
	if services.Gate == nil {
		panic("NewRouter: Gate is required")
	}
	mux := http.NewServeMux()
	gate := services.Gate

	mux.Handle("GET /healthz", gate.Public(healthHandler(gate.Mode())))

	switch gate.Mode() {
	case config.AuthModeBasic:
		if services.Users == nil {
			panic("NewRouter: Users is required in basic mode")
		}
		registerBasicRoutes(mux, gate, &AuthHandlers{Svc: services.Users, Logger: services.Logger})
	case config.AuthModeOAuth:
		if services.OAuth == nil {
			panic("NewRouter: OAuth is required in oauth mode")
		}
		registerOAuthRoutes(mux, gate, &OAuthHandlers{
			Svc:          services.OAuth,
			CookieDomain: services.CookieDomain,
			CookieSecure: services.CookieSecure,
			Logger:       services.Logger,
		})
	case config.AuthModeOpen:
	}

	if services.Tokens != nil {
		registerTokenRoutes(mux, gate, &TokenHandlers{Svc: services.Tokens, Logger: services.Logger})
	}

	mux.Handle("/", http.HandlerFunc(notFound))
	return mux
}

func registerBasicRoutes(mux *http.ServeMux, gate *Gate, h *AuthHandlers) {
	mux.Handle("POST /auth/login", gate.Public(http.HandlerFunc(h.Login)))
	mux.Handle("GET /auth/me", gate.Authenticated(http.HandlerFunc(h.Me)))
	mux.Handle("PUT /auth/password", gate.Authenticated(http.HandlerFunc(h.ChangePassword)))
}

func registerOAuthRoutes(mux *http.ServeMux, gate *Gate, h *OAuthHandlers) {
	mux.Handle("GET /oauth/login", gate.Public(http.HandlerFunc(h.Login)))
	mux.Handle("GET /oauth/callback", gate.Public(http.HandlerFunc(h.Callback)))
	// Public so a stale cookie can still be cleared.
	mux.Handle("POST /oauth/logout", gate.Public(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /oauth/userinfo", gate.Authenticated(http.HandlerFunc(h.UserInfo)))
}

func registerTokenRoutes(mux *http.ServeMux, gate *Gate, h *TokenHandlers) {
	mux.Handle("POST /tokens", gate.Admin(http.HandlerFunc(h.Create)))
	mux.Handle("GET /tokens", gate.Admin(http.HandlerFunc(h.List)))
	mux.Handle("GET /tokens/{id}", gate.Admin(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /tokens/{id}", gate.Admin(http.HandlerFunc(h.Delete)))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	WriteAppError(w, r, nil, apperrors.NotFound("not found"))
}
