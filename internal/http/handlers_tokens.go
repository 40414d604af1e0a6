package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/service"
)

// AccessTokenAdmin defines the token management operations exposed to admins.
type AccessTokenAdmin interface {
	Create(ctx context.Context, in domainauth.CreateAccessTokenInput) (*service.CreatedAccessToken, error)
	List(ctx context.Context) ([]*domainauth.AccessToken, error)
	GetByID(ctx context.Context, id string) (*domainauth.AccessToken, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// TokenHandlers provides HTTP handlers for access token CRUD.
type TokenHandlers struct {
	Svc    AccessTokenAdmin
	Logger *slog.Logger
}

func (h *TokenHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type createTokenRequest struct {
	Name        string     `json:"name"`
	Scopes      []string   `json:"scopes"`
	Collections []string   `json:"collections,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Create mints a token. The raw value appears only in this response.
// POST /tokens.
func (h *TokenHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	in := domainauth.CreateAccessTokenInput{
		Name:        req.Name,
		Scopes:      req.Scopes,
		Collections: req.Collections,
		ExpiresAt:   req.ExpiresAt,
	}
	// Only account-backed identities can own tokens; the column is a user FK.
	if id, ok := IdentityFromContext(r.Context()); ok && id.Kind == domainauth.IdentityUser {
		createdBy := id.ID
		in.CreatedBy = &createdBy
	}

	created, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// List returns every token's metadata.
// GET /tokens.
func (h *TokenHandlers) List(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.Svc.List(r.Context())
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	if tokens == nil {
		tokens = []*domainauth.AccessToken{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

// Get returns one token's metadata.
// GET /tokens/{id}.
func (h *TokenHandlers) Get(w http.ResponseWriter, r *http.Request) {
	tok, err := h.Svc.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, tok)
}

// Delete revokes a token. Deleting an unknown id succeeds and reports deleted=false.
// DELETE /tokens/{id}.
func (h *TokenHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := h.Svc.Delete(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	if deleted {
		h.logger().InfoContext(r.Context(), "access token revoked", "token_id", id)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
