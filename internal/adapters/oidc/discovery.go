package oidc

// Package oidc provides OAuth2/OIDC adapters: provider discovery, the
// authorization-code client and ID token validation.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

// Metadata holds the provider endpoints the adapters need.
type Metadata struct {
	Issuer   string
	AuthURL  string
	TokenURL string
	JWKSURL  string
}

// Validate reports missing endpoints.
func (m Metadata) Validate() error {
	switch {
	case m.Issuer == "":
		return errors.New("issuer is required")
	case m.AuthURL == "":
		return errors.New("authorization endpoint is required")
	case m.TokenURL == "":
		return errors.New("token endpoint is required")
	case m.JWKSURL == "":
		return errors.New("jwks uri is required")
	}
	return nil
}

// Discover fetches provider metadata from the issuer's discovery document.
// discoveryURL may be the issuer itself or the full .well-known URL.
func Discover(ctx context.Context, discoveryURL string, client *http.Client) (Metadata, error) {
	issuer := issuerFromDiscoveryURL(discoveryURL)
	if issuer == "" {
		return Metadata{}, errors.New("discovery URL is required")
	}
	if client != nil {
		ctx = gooidc.ClientContext(ctx, client)
	}

	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return Metadata{}, fmt.Errorf("oidc discovery: %w", err)
	}

	var doc struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := op.Claims(&doc); err != nil {
		return Metadata{}, fmt.Errorf("decode discovery document: %w", err)
	}

	endpoint := op.Endpoint()
	md := Metadata{
		Issuer:   doc.Issuer,
		AuthURL:  endpoint.AuthURL,
		TokenURL: endpoint.TokenURL,
		JWKSURL:  doc.JWKSURI,
	}
	if err := md.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("discovery document: %w", err)
	}
	return md, nil
}

func issuerFromDiscoveryURL(u string) string {
	issuer := strings.TrimSuffix(strings.TrimSpace(u), "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	return strings.TrimSuffix(issuer, "/")
}
