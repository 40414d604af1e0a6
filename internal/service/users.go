package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/observability/metrics"
	"github.com/ragbox/ragbox/internal/ports"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	minUsernameLen = 3
	maxUsernameLen = 64
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

var errInvalidCredentials = apperrors.Unauthorized("Invalid username or password")

// UserServiceOptions groups dependencies for UserService.
type UserServiceOptions struct {
	Users       ports.UserRepository // Required
	Credentials *CredentialService   // Required
	Logger      *slog.Logger
	Metrics     *metrics.Recorder
}

// UserService handles local accounts for basic mode.
type UserService struct {
	users   ports.UserRepository
	creds   *CredentialService
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewUserService constructs a UserService.
func NewUserService(opts UserServiceOptions) *UserService {
	if opts.Users == nil || opts.Credentials == nil {
		panic("user service requires a user repository and credential service")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:   opts.Users,
		creds:   opts.Credentials,
		logger:  logger.With("component", "user_service"),
		metrics: opts.Metrics,
	}
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string          `json:"token"`
	Username  string          `json:"username"`
	Role      domainauth.Role `json:"role"`
	ExpiresIn int64           `json:"expiresIn"` // seconds
}

// Login verifies a username and password and issues a session token. Unknown
// users and wrong passwords fail identically.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.metrics.Login("basic", metrics.ResultFailure, errInvalidCredentials)
		return nil, errInvalidCredentials
	}

	u, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		s.creds.BurnVerification(password)
		return nil, s.loginRejected(ctx, username, "unknown_user")
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.creds.VerifyPassword(password, u.PasswordHash) {
		return nil, s.loginRejected(ctx, username, "bad_password")
	}

	token, expiresAt, err := s.creds.GenerateToken(*u)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Login failed")
	}

	s.metrics.Login("basic", metrics.ResultSuccess, nil)
	s.logger.InfoContext(ctx, "user logged in", "user_id", u.ID)
	return &LoginResult{
		Token:     token,
		Username:  u.Username,
		Role:      u.Role,
		ExpiresIn: int64(expiresAt.Sub(s.creds.now()).Round(time.Second) / time.Second),
	}, nil
}

func (s *UserService) loginRejected(ctx context.Context, username, reason string) error {
	s.logger.InfoContext(ctx, "login rejected", "username", username, "reason", reason)
	s.metrics.Login("basic", metrics.ResultFailure, errInvalidCredentials)
	return errInvalidCredentials
}

// Me returns the account behind a validated session token.
func (s *UserService) Me(ctx context.Context, userID string) (*domainauth.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ports.ErrNotFound) {
		// A valid token for a deleted account is treated like a bad token.
		return nil, apperrors.Unauthorized("Authentication required")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !s.creds.VerifyPassword(current, u.PasswordHash) {
		s.logger.InfoContext(ctx, "password change rejected", "user_id", userID, "reason", "bad_password")
		return apperrors.Unauthorized("Current password is incorrect")
	}
	if err := validatePassword("newPassword", next); err != nil {
		return err
	}
	if next == current {
		return apperrors.ValidationField("newPassword", "new password must differ from the current password")
	}

	hash, err := s.creds.HashPassword(next)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to update password")
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// CreateUser adds a local account.
func (s *UserService) CreateUser(ctx context.Context, username, password string, role domainauth.Role) (*domainauth.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword("password", password); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperrors.ValidationField("role", fmt.Sprintf("role must be %q or %q", domainauth.RoleAdmin, domainauth.RoleUser))
	}

	hash, err := s.creds.HashPassword(password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to create user")
	}
	u := &domainauth.User{Username: username, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// EnsureBootstrapAdmin creates the first admin when no users exist and a
// password is configured. It reports whether an account was created.
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if _, err := s.CreateUser(ctx, username, password, domainauth.RoleAdmin); err != nil {
		if apperrors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.WarnContext(ctx, "bootstrap admin account created; change its password", "username", username)
	return true, nil
}

func validateUsername(username string) error {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return apperrors.ValidationField("username",
			fmt.Sprintf("username must be %d to %d characters", minUsernameLen, maxUsernameLen))
	}
	if !usernamePattern.MatchString(username) {
		return apperrors.ValidationField("username", "username may contain letters, digits, dot, underscore and dash")
	}
	return nil
}

func validatePassword(field, password string) error {
	if n := len(password); n < minPasswordLen || n > maxPasswordLen {
		return apperrors.ValidationField(field,
			fmt.Sprintf("password must be %d to %d characters", minPasswordLen, maxPasswordLen))
	}
	return nil
}
