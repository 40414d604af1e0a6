package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ragbox/ragbox/internal/data/pgxutil"
	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/ports"
)

const accessTokenColumns = `id::text AS id, name, scopes, collections, token_hash, token_prefix,
	created_by::text AS created_by, expires_at, last_used_at, created_at`

// AccessTokenRepo persists hashed access tokens in Postgres.
type AccessTokenRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAccessTokenRepo creates a new AccessTokenRepo with real time provider.
func NewAccessTokenRepo(db *sql.DB) *AccessTokenRepo {
	return &AccessTokenRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// Create inserts t and fills in its ID and CreatedAt.
func (r *AccessTokenRepo) Create(ctx context.Context, t *domainauth.AccessToken) error {
	if t == nil {
		return errors.New("access token is required")
	}
	scopes := t.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	out, err := pgxutil.QueryOne[domainauth.AccessToken](ctx, r.DB, `
		INSERT INTO access_tokens (name, token_hash, token_prefix, scopes, collections, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+accessTokenColumns,
		t.Name,
		t.TokenHash,
		t.TokenPrefix,
		scopes,
		t.Collections,
		t.CreatedBy,
		t.ExpiresAt,
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create access token: %w", apperrors.MapDBError(err))
	}
	*t = out
	return nil
}

func (r *AccessTokenRepo) getOne(ctx context.Context, where string, arg any) (*domainauth.AccessToken, error) {
	out, err := pgxutil.QueryOne[domainauth.AccessToken](ctx, r.DB,
		`SELECT `+accessTokenColumns+` FROM access_tokens WHERE `+where, arg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// GetByHash looks a token up by the hex SHA-256 of its raw value.
func (r *AccessTokenRepo) GetByHash(ctx context.Context, hash string) (*domainauth.AccessToken, error) {
	return r.getOne(ctx, `token_hash = $1`, hash)
}

func (r *AccessTokenRepo) GetByID(ctx context.Context, id string) (*domainauth.AccessToken, error) {
	return r.getOne(ctx, `id::text = $1`, id)
}

// List returns all tokens, newest first.
func (r *AccessTokenRepo) List(ctx context.Context) ([]*domainauth.AccessToken, error) {
	out, err := pgxutil.QueryAll[domainauth.AccessToken](ctx, r.DB,
		`SELECT `+accessTokenColumns+` FROM access_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list access tokens: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Delete reports whether a row was removed.
func (r *AccessTokenRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM access_tokens WHERE id::text = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete access token: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete access token rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (r *AccessTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired access tokens: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired access tokens rows affected: %w", err)
	}
	return n, nil
}

func (r *AccessTokenRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE access_tokens SET last_used_at = $2 WHERE id::text = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch access token: %w", apperrors.MapDBError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}
