package idp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfreview/backend/internal/identity/domain"
	"perfreview/backend/internal/security"
)

type fakeIDP struct {
	mu           sync.Mutex
	wantVerifier string
	revoked      []string
	slow         time.Duration
}

func (f *fakeIDP) handler(t *testing.T, base func() string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"authorization_endpoint": base() + "/authorize",
			"token_endpoint":         base() + "/token",
			"userinfo_endpoint":      base() + "/userinfo",
			"revocation_endpoint":    base() + "/revoke",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if f.slow > 0 {
			time.Sleep(f.slow)
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.Form.Get("code") != "c1" || r.Form.Get("code_verifier") != f.wantVerifier {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","id_token":"idt-1","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer at-1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"sub": "idp-42", "email": "a@b.com", "name": "A", "email_verified": true, "groups": []string{"managers"},
			})
		case "Bearer no-email":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"sub": "idp-43"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.revoked = append(f.revoked, r.Form.Get("token"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestProvider(t *testing.T, f *fakeIDP, timeout time.Duration) *OIDCProvider {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(f.handler(t, func() string { return srv.URL }))
	t.Cleanup(srv.Close)
	p, err := NewOIDCProvider(context.Background(), Config{
		IssuerURL:    srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		Timeout:      timeout,
	})
	require.NoError(t, err)
	return p
}

func TestNewOIDCProvider_Validation(t *testing.T) {
	_, err := NewOIDCProvider(context.Background(), Config{ClientID: "c"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewOIDCProvider(context.Background(), Config{ClientID: "c", RedirectURL: "http://x/cb", AuthURL: "http://x/a"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthCodeURL_CarriesPKCE(t *testing.T) {
	p := newTestProvider(t, &fakeIDP{}, time.Second)
	verifier := security.GenerateVerifier()
	raw := p.AuthCodeURL("state-1", verifier)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, security.DeriveChallenge(verifier), q.Get("code_challenge"))
	assert.Equal(t, "client", q.Get("client_id"))
}

func TestExchangeAndValidate(t *testing.T) {
	f := &fakeIDP{wantVerifier: "v1"}
	p := newTestProvider(t, f, time.Second)
	ctx := context.Background()

	tok, err := p.ExchangeCode(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.Equal(t, "idt-1", tok.IDToken)

	claims, err := p.ValidateToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "idp-42", claims.Subject)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "A", claims.Name)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, []string{"managers"}, claims.Groups)
}

func TestExchangeCode_WrongVerifier(t *testing.T) {
	p := newTestProvider(t, &fakeIDP{wantVerifier: "v1"}, time.Second)
	_, err := p.ExchangeCode(context.Background(), "c1", "other")
	assert.ErrorIs(t, err, ErrExchangeFailed)

	_, err = p.ExchangeCode(context.Background(), "", "v1")
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestExchangeCode_Timeout(t *testing.T) {
	p := newTestProvider(t, &fakeIDP{wantVerifier: "v1", slow: 200 * time.Millisecond}, 50*time.Millisecond)
	start := time.Now()
	_, err := p.ExchangeCode(context.Background(), "c1", "v1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestValidateToken_Rejected(t *testing.T) {
	p := newTestProvider(t, &fakeIDP{}, time.Second)
	ctx := context.Background()

	_, err := p.ValidateToken(ctx, &domain.ProviderToken{AccessToken: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidProviderToken)

	_, err = p.ValidateToken(ctx, &domain.ProviderToken{AccessToken: "no-email"})
	assert.ErrorIs(t, err, ErrInvalidProviderToken)

	_, err = p.ValidateToken(ctx, nil)
	assert.True(t, errors.Is(err, ErrInvalidProviderToken))
}

func TestRevokeToken(t *testing.T) {
	f := &fakeIDP{}
	p := newTestProvider(t, f, time.Second)
	require.NoError(t, p.RevokeToken(context.Background(), "at-1"))
	require.NoError(t, p.RevokeToken(context.Background(), ""))
	assert.Equal(t, []string{"at-1"}, f.revoked)
}
