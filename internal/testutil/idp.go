package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// IdP is an in-process OpenID provider serving discovery, authorize, token
// and JWKS endpoints for tests.
type IdP struct {
	Server   *httptest.Server
	Issuer   string
	ClientID string

	mu     sync.Mutex
	key    *rsa.PrivateKey
	kid    string
	codes  map[string]pendingCode
	login  map[string]any
	failJW atomic.Bool

	jwksHits atomic.Int64
}

type pendingCode struct {
	claims    map[string]any
	challenge string
}

// NewIdP starts a provider and registers its shutdown with t.
func NewIdP(t TestingTB, clientID string) *IdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate idp key: %v", err)
	}
	p := &IdP{
		ClientID: clientID,
		key:      key,
		kid:      "key-1",
		codes:    map[string]pendingCode{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("GET /authorize", p.handleAuthorize)
	mux.HandleFunc("POST /token", p.handleToken)
	mux.HandleFunc("GET /jwks", p.handleJWKS)

	p.Server = httptest.NewServer(mux)
	p.Issuer = p.Server.URL
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the absolute URL of path on the provider.
func (p *IdP) URL(path string) string { return p.Server.URL + path }

// JWKSHits reports how many times the key set was served.
func (p *IdP) JWKSHits() int64 { return p.jwksHits.Load() }

// FailJWKS makes the key set endpoint return 503 while set.
func (p *IdP) FailJWKS(fail bool) { p.failJW.Store(fail) }

// RotateKey replaces the signing key and key id.
func (p *IdP) RotateKey(t TestingTB, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate idp key: %v", err)
	}
	p.mu.Lock()
	p.key, p.kid = key, kid
	p.mu.Unlock()
}

// Claims returns a valid claim set for subject, issued now and expiring in an hour.
func (p *IdP) Claims(subject, email string) map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":    p.Issuer,
		"aud":    p.ClientID,
		"sub":    subject,
		"email":  email,
		"name":   "Test User",
		"groups": []string{"engineering"},
		"iat":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
	}
}

// SetLoginClaims sets the claims issued to the next browser login via /authorize.
func (p *IdP) SetLoginClaims(claims map[string]any) {
	p.mu.Lock()
	p.login = claims
	p.mu.Unlock()
}

// Sign signs claims with the current provider key.
func (p *IdP) Sign(t TestingTB, claims map[string]any) string {
	t.Helper()
	p.mu.Lock()
	key, kid := p.key, p.kid
	p.mu.Unlock()
	return SignJWT(t, key, kid, claims)
}

// IssueCode registers an authorization code that the token endpoint redeems
// for an ID token carrying claims, provided the verifier matches challenge.
func (p *IdP) IssueCode(claims map[string]any, challenge string) string {
	code := randomString()
	p.mu.Lock()
	p.codes[code] = pendingCode{claims: claims, challenge: challenge}
	p.mu.Unlock()
	return code
}

// SignJWT signs claims as a compact RS256 JWS with the given key id.
func SignJWT(t TestingTB, key *rsa.PrivateKey, kid string, claims map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: string(jose.RS256)}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw, err := obj.CompactSerialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return raw
}

func (p *IdP) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.Issuer,
		"authorization_endpoint":                p.URL("/authorize"),
		"token_endpoint":                        p.URL("/token"),
		"jwks_uri":                              p.URL("/jwks"),
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *IdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" || q.Get("code_challenge_method") != "S256" || q.Get("client_id") != p.ClientID {
		http.Error(w, "bad authorize request", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	claims := p.login
	p.mu.Unlock()
	if claims == nil {
		claims = p.Claims("browser-user", "browser@example.com")
	}
	if nonce := q.Get("nonce"); nonce != "" {
		if _, set := claims["nonce"]; !set {
			claims = maps.Clone(claims)
			claims["nonce"] = nonce
		}
	}
	code := p.IssueCode(claims, q.Get("code_challenge"))

	target, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)
		return
	}
	tq := target.Query()
	tq.Set("code", code)
	tq.Set("state", q.Get("state"))
	target.RawQuery = tq.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *IdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	clientID := r.PostForm.Get("client_id")
	if id, _, ok := r.BasicAuth(); ok {
		clientID = id
	}
	code := r.PostForm.Get("code")

	p.mu.Lock()
	pending, ok := p.codes[code]
	delete(p.codes, code)
	key, kid := p.key, p.kid
	p.mu.Unlock()

	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if !ok || clientID != p.ClientID || r.PostForm.Get("grant_type") != "authorization_code" ||
		base64.RawURLEncoding.EncodeToString(sum[:]) != pending.challenge {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	idToken := SignJWT(nopTB{}, key, kid, pending.claims)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": randomString(),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (p *IdP) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	p.jwksHits.Add(1)
	if p.failJW.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	p.mu.Lock()
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     p.kid,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, set)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomString() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// nopTB lets server handlers reuse SignJWT; failures there surface as empty tokens.
type nopTB struct{}

func (nopTB) Helper()               {}
func (nopTB) Skip(...any)           {}
func (nopTB) Skipf(string, ...any)  {}
func (nopTB) Fatal(...any)          {}
func (nopTB) Fatalf(string, ...any) {}
func (nopTB) Logf(string, ...any)   {}
func (nopTB) Cleanup(func())        {}
