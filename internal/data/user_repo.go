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

const userColumns = `id::text AS id, username, password_hash, role, created_at`

// UserRepo persists local accounts in Postgres.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUserRepo creates a new UserRepo with real time provider.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a new UserRepo with a custom time provider (useful for tests).
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{DB: db, timeProvider: tp}
}

// Create inserts u and fills in its ID and CreatedAt.
func (r *UserRepo) Create(ctx context.Context, u *domainauth.User) error {
	if u == nil {
		return errors.New("user is required")
	}
	out, err := pgxutil.QueryOne[domainauth.User](ctx, r.DB, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		strings.TrimSpace(u.Username),
		u.PasswordHash,
		string(u.Role),
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", apperrors.MapDBError(err))
	}
	*u = out
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*domainauth.User, error) {
	out, err := pgxutil.QueryOne[domainauth.User](ctx, r.DB, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByID returns the user with id, or ports.ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*domainauth.User, error) {
	u, err := r.getOne(ctx, `id::text = $1`, id)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, err
}

// GetByUsername matches case-insensitively.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domainauth.User, error) {
	u, err := r.getOne(ctx, `lower(username) = lower($1)`, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, err
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id::text = $1`,
		id, passwordHash, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update password: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows affected: %w", err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", apperrors.MapDBError(err))
	}
	return n, nil
}
