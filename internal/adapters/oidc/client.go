package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/ports"
)

// ClientConfig holds configuration for the authorization-code client.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	Metadata     Metadata
	HTTPClient   *http.Client  // Optional, defaults to a client with Timeout
	Timeout      time.Duration // Bound for a single code exchange, defaults to 10s
}

// Client implements ports.AuthCodeClient using golang.org/x/oauth2.
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a new authorization-code client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if cfg.Metadata.AuthURL == "" || cfg.Metadata.TokenURL == "" {
		return nil, errors.New("authorization and token endpoints are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	scopes := strings.Fields(cfg.Scope)
	if len(scopes) == 0 {
		scopes = []string{"openid"}
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.Metadata.AuthURL,
				TokenURL: cfg.Metadata.TokenURL,
			},
		},
		httpClient: httpClient,
		timeout:    timeout,
	}, nil
}

// AuthCodeURL builds the provider URL for a code flow with an S256 PKCE
// challenge and, when set, the nonce the ID token must echo.
func (c *Client) AuthCodeURL(req ports.AuthCodeRequest) string {
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(req.CodeVerifier)}
	if req.Nonce != "" {
		opts = append(opts, gooidc.Nonce(req.Nonce))
	}
	return c.config.AuthCodeURL(req.State, opts...)
}

// Exchange redeems code at the token endpoint and returns the raw id_token.
// Provider refusals wrap ErrCodeRejected; transport failures wrap ErrProviderUnavailable.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: authorization code is required", domainauth.ErrCodeRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < http.StatusInternalServerError {
			return "", fmt.Errorf("%w: %s", domainauth.ErrCodeRejected, rerr.ErrorCode)
		}
		return "", fmt.Errorf("%w: exchange code: %w", domainauth.ErrProviderUnavailable, err)
	}

	return getIDTokenFromToken(tok)
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", fmt.Errorf("%w: nil token", domainauth.ErrMalformedToken)
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: missing id_token in token response", domainauth.ErrMalformedToken)
	}
	return s, nil
}
