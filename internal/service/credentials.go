package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

const (
	// PasswordIterations is the PBKDF2 round count for every stored hash. The
	// salt:hash encoding does not record it, so changing it invalidates existing hashes.
	PasswordIterations = 210_000

	passwordSaltBytes = 16
	passwordKeyBytes  = 32
	sessionSecretLen  = 32
	sessionIssuer     = "ragbox"
)

// TokenStatus is the outcome of session token validation.
type TokenStatus string

const (
	TokenValid   TokenStatus = "valid"
	TokenExpired TokenStatus = "expired"
	TokenInvalid TokenStatus = "invalid"
)

// TokenValidation describes a validated (or rejected) session token.
// Reason is for logs only and never returned to callers.
type TokenValidation struct {
	Status   TokenStatus
	UserID   string
	Username string
	Role     domainauth.Role
	Reason   string
}

// sessionClaims is the payload of a self-issued session token.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	Role     domainauth.Role `json:"role"`
}

// CredentialServiceOptions groups configuration for CredentialService.
type CredentialServiceOptions struct {
	Secret []byte        // Required: HMAC key for session tokens
	TTL    time.Duration // Session token lifetime; zero or negative issues already-expired tokens
}

// CredentialService hashes passwords and signs and verifies session tokens.
type CredentialService struct {
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
	dummyHash string
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(opts CredentialServiceOptions) *CredentialService {
	if len(opts.Secret) == 0 {
		panic("session token secret is required")
	}
	s := &CredentialService{
		secret: opts.Secret,
		ttl:    opts.TTL,
		now:    time.Now,
	}
	s.dummyHash = s.mustHash("ragbox-dummy-password")
	return s
}

// GenerateSessionSecret returns a random HMAC key for deployments that do not configure one.
func GenerateSessionSecret() ([]byte, error) {
	b := make([]byte, sessionSecretLen)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	return b, nil
}

// HashPassword derives a salt:hash string with a fresh random salt.
func (s *CredentialService) HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, PasswordIterations, passwordKeyBytes, sha256.New)
	return base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(key), nil
}

// VerifyPassword reports whether password matches the stored salt:hash.
// Malformed hashes never verify.
func (s *CredentialService) VerifyPassword(password, stored string) bool {
	saltPart, hashPart, ok := strings.Cut(stored, ":")
	if !ok || saltPart == "" || hashPart == "" {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, PasswordIterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// BurnVerification performs a verification against a fixed hash so that
// lookups of unknown users cost the same as wrong passwords.
func (s *CredentialService) BurnVerification(password string) {
	_ = s.VerifyPassword(password, s.dummyHash)
}

// GenerateToken issues a signed session token for user.
func (s *CredentialService) GenerateToken(user domainauth.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateToken verifies the signature and expiry of a session token.
// Expired is only reported for tokens whose signature verified.
func (s *CredentialService) ValidateToken(token string) TokenValidation {
	if strings.Count(token, ".") != 2 {
		return TokenValidation{Status: TokenInvalid, Reason: "malformed"}
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenValidation{Status: TokenExpired, UserID: claims.UserID, Reason: "expired"}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return TokenValidation{Status: TokenInvalid, Reason: "bad_signature"}
	default:
		return TokenValidation{Status: TokenInvalid, Reason: "malformed"}
	}

	if claims.UserID == "" || !claims.Role.Valid() {
		return TokenValidation{Status: TokenInvalid, Reason: "bad_claims"}
	}
	return TokenValidation{
		Status:   TokenValid,
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}
}

func (s *CredentialService) mustHash(password string) string {
	h, err := s.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return h
}
