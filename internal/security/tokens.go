package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, has a bad signature, is expired,
	// fails iss/aud checks, or carries a revoked jti.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidIssuerConfig is returned by NewTokenIssuer for unusable settings.
	ErrInvalidIssuerConfig = errors.New("invalid token issuer config")
)

// RevocationStore is the jti revocation set consulted on every verification.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Claims is the JWT body shared by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"sid,omitempty"`
}

// TokenPayload is the verified (or, from DecodeUnsafe, unverified) content of a token.
type TokenPayload struct {
	Subject   string
	Email     string
	Roles     []string
	SessionID string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is an access/refresh pair sharing one jti.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64 // access token lifetime in seconds
	JTI              string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssuerConfig configures a TokenIssuer.
type IssuerConfig struct {
	Issuer      string
	Audience    string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	AccessKey   SigningKey
	RefreshKey  SigningKey
	Revocations RevocationStore
	// Now defaults to time.Now.
	Now func() time.Time
}

// TokenIssuer mints and verifies application JWTs. It is independent of the IdP's own tokens.
type TokenIssuer struct {
	issuer      string
	audience    string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	accessKey   SigningKey
	refreshKey  SigningKey
	revocations RevocationStore
	now         func() time.Time
}

// NewTokenIssuer validates cfg and returns a TokenIssuer. Access and refresh keys must differ so
// compromise of one does not imply compromise of the other.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", ErrInvalidIssuerConfig)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: ttls must be positive", ErrInvalidIssuerConfig)
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, fmt.Errorf("%w: access ttl must be shorter than refresh ttl", ErrInvalidIssuerConfig)
	}
	if cfg.AccessKey.method == nil || cfg.RefreshKey.method == nil {
		return nil, fmt.Errorf("%w: access and refresh keys are required", ErrInvalidIssuerConfig)
	}
	if cfg.AccessKey.fingerprint == cfg.RefreshKey.fingerprint {
		return nil, fmt.Errorf("%w: access and refresh keys must differ", ErrInvalidIssuerConfig)
	}
	if cfg.Revocations == nil {
		return nil, fmt.Errorf("%w: revocation store is required", ErrInvalidIssuerConfig)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		accessKey:   cfg.AccessKey,
		refreshKey:  cfg.RefreshKey,
		revocations: cfg.Revocations,
		now:         now,
	}, nil
}

// AccessTTL returns the access token lifetime.
func (p *TokenIssuer) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (p *TokenIssuer) RefreshTTL() time.Duration { return p.refreshTTL }

// IssuePair mints an access and a refresh token for userID with a fresh jti. sessionID may be empty.
func (p *TokenIssuer) IssuePair(ctx context.Context, userID, email string, roles []string, sessionID string) (*TokenPair, error) {
	if userID == "" {
		return nil, fmt.Errorf("issue pair: %w", ErrInvalidToken)
	}
	jti, err := generateJTI()
	if err != nil {
		return nil, err
	}
	now := p.now().UTC().Truncate(time.Second)
	accessExp := now.Add(p.accessTTL)
	refreshExp := now.Add(p.refreshTTL)
	if roles == nil {
		roles = []string{}
	}

	access, err := p.sign(p.accessKey, p.claims(userID, email, roles, sessionID, jti, now, accessExp))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := p.sign(p.refreshKey, p.claims(userID, email, roles, sessionID, jti, now, refreshExp))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(p.accessTTL / time.Second),
		JTI:              jti,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature, expiry, iss/aud and revocation of an access token.
func (p *TokenIssuer) VerifyAccess(ctx context.Context, token string) (*TokenPayload, error) {
	return p.verify(ctx, p.accessKey, token)
}

// VerifyRefresh checks signature, expiry, iss/aud and revocation of a refresh token.
func (p *TokenIssuer) VerifyRefresh(ctx context.Context, token string) (*TokenPayload, error) {
	return p.verify(ctx, p.refreshKey, token)
}

// DecodeUnsafe parses claims without verifying the signature or expiry. The result is only fit for
// non-authoritative lookups and must never be used to authorize an action.
func (p *TokenIssuer) DecodeUnsafe(token string) (*TokenPayload, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return payloadFromClaims(claims), nil
}

// RevokeByID adds jti to the revocation set for the longest lifetime a token carrying it can have.
// Revoking an already revoked jti is a no-op.
func (p *TokenIssuer) RevokeByID(ctx context.Context, jti string) error {
	if jti == "" {
		return ErrInvalidToken
	}
	return p.revocations.Revoke(ctx, jti, p.refreshTTL)
}

// RevokeToken revokes the jti of a verified access or refresh token for its remaining validity.
func (p *TokenIssuer) RevokeToken(ctx context.Context, token string) error {
	payload, err := p.VerifyAccess(ctx, token)
	if err != nil {
		payload, err = p.VerifyRefresh(ctx, token)
	}
	if err != nil {
		return err
	}
	ttl := payload.ExpiresAt.Sub(p.now())
	if ttl <= 0 {
		return nil
	}
	return p.revocations.Revoke(ctx, payload.JTI, ttl)
}

func (p *TokenIssuer) claims(userID, email string, roles []string, sessionID, jti string, iat, exp time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:     email,
		Roles:     roles,
		SessionID: sessionID,
	}
}

func (p *TokenIssuer) sign(key SigningKey, claims Claims) (string, error) {
	return jwt.NewWithClaims(key.method, claims).SignedString(key.sign)
}

func (p *TokenIssuer) verify(ctx context.Context, key SigningKey, token string) (*TokenPayload, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return key.verify, nil },
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	revoked, err := p.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return payloadFromClaims(claims), nil
}

func payloadFromClaims(c *Claims) *TokenPayload {
	out := &TokenPayload{
		Subject:   c.Subject,
		Email:     c.Email,
		Roles:     append([]string(nil), c.Roles...),
		SessionID: c.SessionID,
		JTI:       c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
