package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ragbox/ragbox/internal/data/pgxutil"
	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/ports"
)

const principalColumns = `id::text AS id, kind, external_id, provider, display_name, created_at`

// PrincipalRepo persists users and groups seen from identity providers.
type PrincipalRepo struct {
	DB *sql.DB
}

// NewPrincipalRepo creates a new PrincipalRepo.
func NewPrincipalRepo(db *sql.DB) *PrincipalRepo {
	return &PrincipalRepo{DB: db}
}

// GetOrCreate upserts on (kind, provider, external_id). A non-empty display
// name replaces the stored one.
func (r *PrincipalRepo) GetOrCreate(ctx context.Context, p domainauth.ExternalPrincipal) (string, error) {
	if strings.TrimSpace(p.ExternalID) == "" {
		return "", errors.New("external id is required")
	}
	var id string
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO principals (kind, external_id, provider, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, provider, external_id) DO UPDATE
			SET display_name = CASE WHEN EXCLUDED.display_name = '' THEN principals.display_name
			                        ELSE EXCLUDED.display_name END
		RETURNING id::text`,
		string(p.Kind), p.ExternalID, p.Provider, p.DisplayName,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert principal: %w", apperrors.MapDBError(err))
	}
	return id, nil
}

func (r *PrincipalRepo) Lookup(ctx context.Context, id string) (*domainauth.Principal, error) {
	out, err := pgxutil.QueryOne[domainauth.Principal](ctx, r.DB,
		`SELECT `+principalColumns+` FROM principals WHERE id::text = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// List returns principals of kind, or all principals when kind is empty.
func (r *PrincipalRepo) List(ctx context.Context, kind domainauth.PrincipalKind) ([]*domainauth.Principal, error) {
	out, err := pgxutil.QueryAll[domainauth.Principal](ctx, r.DB, `
		SELECT `+principalColumns+` FROM principals
		WHERE $1::text = '' OR kind = $1::text
		ORDER BY external_id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

func (r *PrincipalRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM principals WHERE id::text = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete principal: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete principal rows affected: %w", err)
	}
	return n > 0, nil
}
