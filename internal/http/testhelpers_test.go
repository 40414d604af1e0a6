package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
	"github.com/ragbox/ragbox/internal/ports"
	"github.com/ragbox/ragbox/internal/service"
)

// fakeSessionTokens maps raw session tokens to validation results; anything
// else is invalid.
type fakeSessionTokens map[string]service.TokenValidation

func (f fakeSessionTokens) ValidateToken(tok string) service.TokenValidation {
	if v, ok := f[tok]; ok {
		return v
	}
	return service.TokenValidation{Status: service.TokenInvalid, Reason: "unknown"}
}

type fakeSessions struct {
	sessions map[string]*domainauth.OAuthSessionData
	err      error
}

func (f *fakeSessions) ValidateSession(_ context.Context, id string) (*domainauth.OAuthSessionData, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, ports.ErrNotFound
}

type fakeAccessTokens struct {
	tokens map[string]*domainauth.AccessToken
	err    error
	calls  int
}

func (f *fakeAccessTokens) Validate(_ context.Context, raw string) (*domainauth.AccessToken, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if tok, ok := f.tokens[raw]; ok {
		return tok, nil
	}
	return nil, apperrors.Unauthorized("Invalid or expired access token")
}

type fakeLimiter struct {
	mu    sync.Mutex
	allow bool
	retry time.Duration
	keys  []string
}

func (f *fakeLimiter) Allow(key string) (bool, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.allow, f.retry
}

func (f *fakeLimiter) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// echoIdentity writes the identity the gate attached to the request.
var echoIdentity = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "no identity", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, id)
})

func decodeIdentity(t *testing.T, body []byte) domainauth.Identity {
	t.Helper()
	var id domainauth.Identity
	require.NoError(t, json.Unmarshal(body, &id))
	return id
}

func decodeErrorBody(t *testing.T, body []byte) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// safeBuffer is a bytes.Buffer safe for concurrent log writes.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}
