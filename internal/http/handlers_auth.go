package httpx

import (
	"context"
	"log/slog"
	"net/http"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/service"
)

// UserAccounts defines the local account operations behind basic mode.
type UserAccounts interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Me(ctx context.Context, userID string) (*domainauth.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

// AuthHandlers provides HTTP handlers for basic-mode authentication.
type AuthHandlers struct {
	Svc    UserAccounts
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type meResponse struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Role     domainauth.Role `json:"role"`
}

// Login exchanges a username and password for a session token.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Me returns the caller's account.
// GET /auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	if id == nil || id.Kind != domainauth.IdentityUser {
		// Access tokens and other identities have no backing account row.
		resp := meResponse{}
		if id != nil {
			resp = meResponse{ID: id.ID, Username: id.Username, Role: id.Role}
		}
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	u, err := h.Svc.Me(r.Context(), id.ID)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, meResponse{ID: u.ID, Username: u.Username, Role: u.Role})
}

// ChangePassword replaces the caller's password.
// PUT /auth/password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	if id == nil || id.Kind != domainauth.IdentityUser {
		WriteAppError(w, r, h.logger(), apperrors.Forbidden("Password changes require a user session"))
		return
	}

	var req changePasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Svc.ChangePassword(r.Context(), id.ID, req.CurrentPassword, req.NewPassword); err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
