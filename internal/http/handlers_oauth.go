package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/service"
)

// OAuthFlow defines the OIDC orchestrator operations used by the handlers.
type OAuthFlow interface {
	InitiateLogin(ctx context.Context, redirectAfterLogin string) (*service.LoginStart, error)
	HandleCallback(ctx context.Context, in service.CallbackInput) (*service.CallbackResult, error)
	Logout(ctx context.Context, id string) error
	SessionMaxAge() time.Duration
}

// OAuthHandlers provides HTTP handlers for the OIDC login flow.
type OAuthHandlers struct {
	Svc          OAuthFlow
	CookieDomain string
	CookieSecure bool
	Logger       *slog.Logger
}

func (h *OAuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login starts an authorization code flow.
// GET /oauth/login?redirect=<optional_path>.
func (h *OAuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	start, err := h.Svc.InitiateLogin(r.Context(), r.URL.Query().Get("redirect"))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, start)
}

// Callback completes the flow, sets the session cookie and redirects.
// GET /oauth/callback?code=<code>&state=<state>.
func (h *OAuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.Svc.HandleCallback(r.Context(), service.CallbackInput{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}

	h.setSessionCookie(w, res.Session.SessionID)
	http.Redirect(w, r, res.RedirectAfterLogin, http.StatusFound)
}

// Logout deletes the server-side session and clears the cookie.
// POST /oauth/logout.
func (h *OAuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		if logoutErr := h.Svc.Logout(r.Context(), c.Value); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
	}
	h.clearSessionCookie(w)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

type userInfoResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username,omitempty"`
	Email     string          `json:"email,omitempty"`
	Role      domainauth.Role `json:"role"`
	SessionID string          `json:"sessionId,omitempty"`
}

// UserInfo returns the claims of the caller's session.
// GET /oauth/userinfo.
func (h *OAuthHandlers) UserInfo(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	if id == nil {
		id = anonymousIdentity()
	}
	WriteJSON(w, http.StatusOK, userInfoResponse{
		ID:        id.ID,
		Username:  id.Username,
		Email:     id.Email,
		Role:      id.Role,
		SessionID: id.SessionID,
	})
}

func (h *OAuthHandlers) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.Svc.SessionMaxAge().Seconds()),
	})
}

// clearSessionCookie mirrors the attributes used when setting the cookie so
// browsers match and drop it.
func (h *OAuthHandlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}
