package auth

import (
	"errors"
	"fmt"
)

// ID token validation failures. They stay distinguishable for logs and
// metrics; the API boundary collapses them into one authentication failure.
var (
	ErrTokenExpired     = errors.New("id token expired")
	ErrInvalidIssuer    = errors.New("id token issuer mismatch")
	ErrInvalidAudience  = errors.New("id token audience mismatch")
	ErrInvalidSignature = errors.New("id token signature invalid")
	ErrMalformedToken   = errors.New("id token malformed")
	ErrNonceMismatch    = errors.New("id token nonce mismatch")
)

// ErrProviderUnavailable marks identity provider failures that are not the
// caller's fault (network errors, bad key set responses).
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// ErrKeySetUnavailable is returned when signing keys cannot be fetched.
var ErrKeySetUnavailable = fmt.Errorf("%w: signing key set", ErrProviderUnavailable)

// ErrCodeRejected is returned when the provider refuses an authorization code.
var ErrCodeRejected = errors.New("authorization code rejected")

// ValidationReason returns a short label for a validation error suitable for
// log fields and metric tags.
func ValidationReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, ErrInvalidAudience):
		return "invalid_audience"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrNonceMismatch):
		return "nonce_mismatch"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrCodeRejected):
		return "code_rejected"
	default:
		return "unknown"
	}
}
