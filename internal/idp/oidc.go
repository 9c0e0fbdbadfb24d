// Package idp adapts an external OAuth2/OIDC identity provider: authorize URL, code exchange with a
// PKCE verifier, userinfo lookup and token revocation.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"perfreview/backend/internal/identity/domain"
)

// Sentinel errors for the provider adapter.
var (
	ErrNotConfigured        = errors.New("idp: provider not configured")
	ErrExchangeFailed       = errors.New("idp: authorization code exchange failed")
	ErrInvalidProviderToken = errors.New("idp: provider token rejected")
)

const defaultTimeout = 10 * time.Second

// Config configures OIDCProvider. Endpoints left empty are filled from the issuer's discovery document.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RevokeURL    string
	Scopes       []string
	// Timeout bounds every outbound call. Defaults to 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OIDCProvider talks to the identity provider over HTTP.
type OIDCProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	revokeURL   string
	client      *http.Client
	timeout     time.Duration
}

type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	RevocationEndpoint    string `json:"revocation_endpoint"`
}

// NewOIDCProvider validates cfg, resolving missing endpoints via OIDC discovery when IssuerURL is set.
func NewOIDCProvider(ctx context.Context, cfg Config) (*OIDCProvider, error) {
	if cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("%w: client id and redirect url are required", ErrNotConfigured)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	p := &OIDCProvider{client: client, timeout: timeout}
	if cfg.IssuerURL != "" && (cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "") {
		doc, err := p.discover(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, err
		}
		cfg.AuthURL = firstNonEmpty(cfg.AuthURL, doc.AuthorizationEndpoint)
		cfg.TokenURL = firstNonEmpty(cfg.TokenURL, doc.TokenEndpoint)
		cfg.UserInfoURL = firstNonEmpty(cfg.UserInfoURL, doc.UserInfoEndpoint)
		cfg.RevokeURL = firstNonEmpty(cfg.RevokeURL, doc.RevocationEndpoint)
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%w: auth, token and userinfo endpoints are required", ErrNotConfigured)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	p.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
	p.userInfoURL = cfg.UserInfoURL
	p.revokeURL = cfg.RevokeURL
	return p, nil
}

// AuthCodeURL returns the authorize URL carrying state and the S256 challenge of verifier.
func (p *OIDCProvider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// ExchangeCode trades an authorization code and its PKCE verifier for provider tokens.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code, verifier string) (*domain.ProviderToken, error) {
	if code == "" || verifier == "" {
		return nil, fmt.Errorf("%w: code and verifier are required", ErrExchangeFailed)
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	out := &domain.ProviderToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	return out, nil
}

type userInfo struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	EmailVerified bool     `json:"email_verified"`
	Groups        []string `json:"groups"`
}

// ValidateToken asks the provider's userinfo endpoint who the token belongs to. A token the
// provider does not accept, or claims without subject and email, yield ErrInvalidProviderToken.
func (p *OIDCProvider) ValidateToken(ctx context.Context, token *domain.ProviderToken) (*domain.ProviderClaims, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrInvalidProviderToken
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	client := p.oauth.Client(p.clientContext(ctx), &oauth2.Token{AccessToken: token.AccessToken, TokenType: "Bearer"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("idp: userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidProviderToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("idp: userinfo returned %d", resp.StatusCode)
	}
	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("idp: decode userinfo: %w", err)
	}
	claims := &domain.ProviderClaims{
		Subject:       strings.TrimSpace(info.Subject),
		Email:         strings.TrimSpace(info.Email),
		Name:          strings.TrimSpace(info.Name),
		EmailVerified: info.EmailVerified,
		Groups:        info.Groups,
	}
	if !claims.Valid() {
		return nil, fmt.Errorf("%w: missing subject or email", ErrInvalidProviderToken)
	}
	return claims, nil
}

// RevokeToken revokes a provider token (RFC 7009). It is a no-op when the provider has no
// revocation endpoint.
func (p *OIDCProvider) RevokeToken(ctx context.Context, token string) error {
	if p.revokeURL == "" || token == "" {
		return nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	form := url.Values{"token": {token}, "client_id": {p.oauth.ClientID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.oauth.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.oauth.ClientID), url.QueryEscape(p.oauth.ClientSecret))
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("idp: revoke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("idp: revoke returned %d", resp.StatusCode)
	}
	return nil
}

func (p *OIDCProvider) discover(ctx context.Context, issuer string) (*discoveryDocument, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	u := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("idp: discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("idp: discovery returned %d", resp.StatusCode)
	}
	var doc discoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("idp: decode discovery: %w", err)
	}
	return &doc, nil
}

// withTimeout bounds ctx by the configured timeout and makes oauth2 use the configured client.
func (p *OIDCProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	return p.clientContext(ctx), cancel
}

func (p *OIDCProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
