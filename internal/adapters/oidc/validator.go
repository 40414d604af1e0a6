package oidc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

// allowedAlgorithms lists the asymmetric algorithms accepted for ID tokens.
var allowedAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384,
	jose.PS256,
}

func allowedAlgorithmNames() []string {
	names := make([]string, len(allowedAlgorithms))
	for i, a := range allowedAlgorithms {
		names[i] = string(a)
	}
	return names
}

// ValidatorConfig holds configuration for a Validator.
type ValidatorConfig struct {
	Issuer    string
	ClientID  string
	ClockSkew time.Duration
	Claims    ClaimMapping
	KeySet    gooidc.KeySet // Required
}

// Validator verifies ID tokens with go-oidc's IDTokenVerifier and maps its
// failures onto the domain validation errors.
type Validator struct {
	issuer   string
	clientID string
	skew     time.Duration
	algs     []string
	claims   compiledClaims
	keys     gooidc.KeySet
	now      func() time.Time
}

// NewValidator constructs a Validator.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.KeySet == nil {
		return nil, errors.New("key set is required")
	}
	return &Validator{
		issuer:   cfg.Issuer,
		clientID: cfg.ClientID,
		skew:     max(cfg.ClockSkew, 0),
		algs:     allowedAlgorithmNames(),
		claims:   compileClaimMapping(cfg.Claims),
		keys:     cfg.KeySet,
		now:      time.Now,
	}, nil
}

// standardClaims is decoded only to classify verifier rejections.
type standardClaims struct {
	Issuer   string   `json:"iss"`
	Audience audience `json:"aud"`
}

// audience accepts either a single string or an array of strings.
type audience []string

func (a *audience) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var multi []string
	if err := json.Unmarshal(b, &multi); err != nil {
		return err
	}
	*a = multi
	return nil
}

// recordingKeySet keeps the outcome of the signature step of one Verify call.
type recordingKeySet struct {
	gooidc.KeySet
	called  bool
	payload []byte
	err     error
}

func (r *recordingKeySet) VerifySignature(ctx context.Context, rawJWT string) ([]byte, error) {
	r.called = true
	r.payload, r.err = r.KeySet.VerifySignature(ctx, rawJWT)
	return r.payload, r.err
}

// Validate verifies rawIDToken and returns its claims. Errors wrap one of
// the domain validation sentinels, or ErrKeySetUnavailable.
func (v *Validator) Validate(ctx context.Context, rawIDToken string) (*domainauth.ValidatedIDToken, error) {
	if strings.Count(rawIDToken, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three segments", domainauth.ErrMalformedToken)
	}
	alg, err := headerAlgorithm(rawIDToken)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(allowedAlgorithms, alg) {
		return nil, fmt.Errorf("%w: algorithm %q not allowed", domainauth.ErrInvalidSignature, alg)
	}

	keys := &recordingKeySet{KeySet: v.keys}
	verifier := gooidc.NewVerifier(v.issuer, keys, &gooidc.Config{
		ClientID:             v.clientID,
		SupportedSigningAlgs: v.algs,
		// Expiry is compared against a clock shifted back by the allowed skew.
		Now: func() time.Time { return v.now().Add(-v.skew) },
	})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, v.classify(err, keys)
	}

	raw := map[string]any{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %w", domainauth.ErrMalformedToken, err)
	}
	if idToken.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing iat", domainauth.ErrMalformedToken)
	}
	if idToken.IssuedAt.After(v.now().Add(v.skew)) {
		return nil, fmt.Errorf("%w: issued in the future", domainauth.ErrMalformedToken)
	}
	if strings.TrimSpace(idToken.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", domainauth.ErrMalformedToken)
	}

	return &domainauth.ValidatedIDToken{
		Subject:   idToken.Subject,
		Email:     v.claims.email.stringValue(raw),
		Name:      v.claims.name.stringValue(raw),
		Groups:    v.claims.groups.stringsValue(raw),
		Nonce:     idToken.Nonce,
		IssuedAt:  idToken.IssuedAt,
		ExpiresAt: idToken.Expiry,
		RawClaims: raw,
	}, nil
}

// classify maps a verifier error onto the domain taxonomy. go-oidc checks
// signature, claim decoding, issuer, audience and expiry in that order, so a
// verified payload tells which claim check failed.
func (v *Validator) classify(err error, keys *recordingKeySet) error {
	if keys.err != nil {
		if errors.Is(keys.err, domainauth.ErrMalformedToken) ||
			errors.Is(keys.err, domainauth.ErrInvalidSignature) ||
			errors.Is(keys.err, domainauth.ErrProviderUnavailable) {
			return keys.err
		}
		return fmt.Errorf("%w: %w", domainauth.ErrInvalidSignature, keys.err)
	}
	if !keys.called {
		return fmt.Errorf("%w: %w", domainauth.ErrMalformedToken, err)
	}

	var expired *gooidc.TokenExpiredError
	if errors.As(err, &expired) {
		if expired.Expiry.IsZero() {
			return fmt.Errorf("%w: missing exp", domainauth.ErrMalformedToken)
		}
		return fmt.Errorf("%w: expired at %s", domainauth.ErrTokenExpired, expired.Expiry.UTC().Format(time.RFC3339))
	}

	var std standardClaims
	if json.Unmarshal(keys.payload, &std) == nil {
		if std.Issuer != v.issuer {
			return fmt.Errorf("%w: got %q", domainauth.ErrInvalidIssuer, std.Issuer)
		}
		if !slices.Contains(std.Audience, v.clientID) {
			return fmt.Errorf("%w: client %q not in audience", domainauth.ErrInvalidAudience, v.clientID)
		}
	}
	return fmt.Errorf("%w: %w", domainauth.ErrMalformedToken, err)
}

func headerAlgorithm(rawIDToken string) (jose.SignatureAlgorithm, error) {
	seg, _, _ := strings.Cut(rawIDToken, ".")
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return "", fmt.Errorf("%w: header encoding", domainauth.ErrMalformedToken)
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&hdr); err != nil {
		return "", fmt.Errorf("%w: header json", domainauth.ErrMalformedToken)
	}
	return jose.SignatureAlgorithm(hdr.Alg), nil
}
