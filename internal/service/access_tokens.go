package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/observability/metrics"
	"github.com/ragbox/ragbox/internal/ports"
)

const (
	accessTokenRandomBytes = 32
	accessTokenPrefixChars = 8
	maxAccessTokenName     = 100
)

// errInvalidAccessToken is the single failure surfaced for unknown, malformed
// and expired tokens.
var errInvalidAccessToken = apperrors.Unauthorized("Invalid or expired access token")

// AccessTokenServiceOptions groups dependencies for AccessTokenService.
type AccessTokenServiceOptions struct {
	Repo    ports.AccessTokenRepository // Required
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// AccessTokenService mints and verifies long-lived scoped tokens.
type AccessTokenService struct {
	repo    ports.AccessTokenRepository
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewAccessTokenService constructs an AccessTokenService.
func NewAccessTokenService(opts AccessTokenServiceOptions) *AccessTokenService {
	if opts.Repo == nil {
		panic("access token repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessTokenService{
		repo:    opts.Repo,
		logger:  logger.With("component", "access_tokens"),
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// HashAccessToken returns the hex SHA-256 of a raw token, the form stored at rest.
func HashAccessToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreatedAccessToken is returned once at creation; RawToken is never stored.
type CreatedAccessToken struct {
	Token    *domainauth.AccessToken `json:"token"`
	RawToken string                  `json:"rawToken"`
}

func (s *AccessTokenService) validateInput(in *domainauth.CreateAccessTokenInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperrors.ValidationField("name", "name is required")
	}
	if len(in.Name) > maxAccessTokenName {
		return apperrors.ValidationField("name", fmt.Sprintf("name must be at most %d characters", maxAccessTokenName))
	}
	if len(in.Scopes) == 0 {
		return apperrors.ValidationField("scopes", "at least one scope is required")
	}
	for _, sc := range in.Scopes {
		if !domainauth.IsValidScope(sc) {
			return apperrors.ValidationField("scopes", fmt.Sprintf("unknown scope %q (allowed: %s)",
				sc, strings.Join(domainauth.ValidScopes(), ", ")))
		}
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return apperrors.ValidationField("expiresAt", "expiresAt must be in the future")
	}
	for _, c := range in.Collections {
		if strings.TrimSpace(c) == "" {
			return apperrors.ValidationField("collections", "collection names cannot be blank")
		}
	}
	return nil
}

// Create validates input, mints a raw token and stores only its hash.
func (s *AccessTokenService) Create(ctx context.Context, in domainauth.CreateAccessTokenInput) (*CreatedAccessToken, error) {
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	buf := make([]byte, accessTokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to generate token")
	}
	suffix := base64.RawURLEncoding.EncodeToString(buf)
	raw := domainauth.AccessTokenPrefix + suffix

	scopes := slices.Clone(in.Scopes)
	slices.Sort(scopes)
	tok := &domainauth.AccessToken{
		Name:        in.Name,
		Scopes:      slices.Compact(scopes),
		Collections: slices.Clone(in.Collections),
		TokenHash:   HashAccessToken(raw),
		TokenPrefix: domainauth.AccessTokenPrefix + suffix[:accessTokenPrefixChars],
		CreatedBy:   in.CreatedBy,
		ExpiresAt:   in.ExpiresAt,
	}
	if err := s.repo.Create(ctx, tok); err != nil {
		return nil, fmt.Errorf("store access token: %w", err)
	}

	s.logger.InfoContext(ctx, "access token created", "token_id", tok.ID, "prefix", tok.TokenPrefix, "scopes", tok.Scopes)
	return &CreatedAccessToken{Token: tok, RawToken: raw}, nil
}

// Validate resolves a raw token. Unknown, malformed and expired tokens all
// return the same unauthorized error.
func (s *AccessTokenService) Validate(ctx context.Context, raw string) (*domainauth.AccessToken, error) {
	if !strings.HasPrefix(raw, domainauth.AccessTokenPrefix) || len(raw) <= len(domainauth.AccessTokenPrefix) {
		return nil, s.reject(ctx, "malformed", nil)
	}

	hash := HashAccessToken(raw)
	tok, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) || apperrors.IsNotFound(err) {
			return nil, s.reject(ctx, "unknown", nil)
		}
		return nil, fmt.Errorf("lookup access token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(tok.TokenHash), []byte(hash)) != 1 {
		return nil, s.reject(ctx, "hash_mismatch", nil)
	}

	now := s.now()
	if tok.IsExpired(now) {
		return nil, s.reject(ctx, "expired", tok)
	}

	if touchErr := s.repo.TouchLastUsed(ctx, tok.ID, now.UTC()); touchErr != nil {
		s.logger.WarnContext(ctx, "failed to update token last use", "token_id", tok.ID, "error", touchErr)
	} else {
		usedAt := now.UTC()
		tok.LastUsedAt = &usedAt
	}
	s.metrics.Login("token", metrics.ResultSuccess, nil)
	return tok, nil
}

func (s *AccessTokenService) reject(ctx context.Context, reason string, tok *domainauth.AccessToken) error {
	attrs := []any{"reason", reason}
	if tok != nil {
		attrs = append(attrs, "token_id", tok.ID)
	}
	s.logger.InfoContext(ctx, "access token rejected", attrs...)
	s.metrics.Login("token", metrics.ResultFailure, errInvalidAccessToken)
	return errInvalidAccessToken
}

// List returns every token without hashes or raw values.
func (s *AccessTokenService) List(ctx context.Context) ([]*domainauth.AccessToken, error) {
	toks, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list access tokens: %w", err)
	}
	return toks, nil
}

// GetByID returns a NotFound AppError for unknown ids.
func (s *AccessTokenService) GetByID(ctx context.Context, id string) (*domainauth.AccessToken, error) {
	tok, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, apperrors.NotFound("Access token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}
	return tok, nil
}

// Delete reports whether the token existed.
func (s *AccessTokenService) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete access token: %w", err)
	}
	if deleted {
		s.logger.InfoContext(ctx, "access token revoked", "token_id", id)
	}
	return deleted, nil
}

// PurgeExpired deletes tokens that expired more than retention ago.
func (s *AccessTokenService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge expired access tokens: %w", err)
	}
	if n > 0 {
		s.metrics.SweepEvicted("access_tokens", int(n))
		s.logger.InfoContext(ctx, "expired access tokens purged", "count", n)
	}
	return n, nil
}
