// Package service sequences the identity provider, token issuer, refresh token ledger and session
// tracker into the login, refresh, logout and current-user use cases.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"perfreview/backend/internal/audit"
	auditdomain "perfreview/backend/internal/audit/domain"
	identitydomain "perfreview/backend/internal/identity/domain"
	"perfreview/backend/internal/policy/engine"
	refreshsvc "perfreview/backend/internal/refreshtoken/service"
	"perfreview/backend/internal/security"
	sessiondomain "perfreview/backend/internal/session/domain"
	sessionsvc "perfreview/backend/internal/session/service"
	"perfreview/backend/internal/telemetry"
	telemetrydomain "perfreview/backend/internal/telemetry/domain"
	userdomain "perfreview/backend/internal/user/domain"
	userrepo "perfreview/backend/internal/user/repository"
)

// ErrSessionNotFound is returned by RevokeSession for a session the user does not own.
var ErrSessionNotFound = sessionsvc.ErrSessionNotFound

const (
	defaultSessionTTL = 7 * 24 * time.Hour
	defaultIdPTimeout = 10 * time.Second
)

// AuthResult is the outcome of a successful Authenticate or RefreshTokens.
type AuthResult struct {
	Tokens    *security.TokenPair
	User      identitydomain.UserView
	SessionID string
}

// IdentityProvider is the external IdP as seen by the auth service.
type IdentityProvider interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*identitydomain.ProviderToken, error)
	ValidateToken(ctx context.Context, token *identitydomain.ProviderToken) (*identitydomain.ProviderClaims, error)
	RevokeToken(ctx context.Context, token string) error
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	Update(ctx context.Context, u *userdomain.User) error
}

// Ledger issues and redeems refresh tokens.
type Ledger interface {
	Issue(ctx context.Context, subject refreshsvc.Subject, sessionID string) (*security.TokenPair, error)
	Redeem(ctx context.Context, raw string, presented *security.TokenPayload, subject refreshsvc.Subject) (*security.TokenPair, error)
}

// Tracker records sessions.
type Tracker interface {
	CreateWithID(ctx context.Context, id, userID string, meta sessiondomain.DeviceMeta, expiresAt time.Time) (*sessiondomain.Session, error)
	RevokeAllForUser(ctx context.Context, userID string) error
	Revoke(ctx context.Context, userID, sessionID string) error
	ListActive(ctx context.Context, userID string) ([]sessiondomain.Session, error)
	Touch(ctx context.Context, sessionID string) error
}

// RefreshVerifier checks a refresh token's signature, expiry and revocation.
type RefreshVerifier interface {
	VerifyRefresh(ctx context.Context, token string) (*security.TokenPayload, error)
}

// Config holds the auth service's timings.
type Config struct {
	SessionTTL time.Duration
	IdPTimeout time.Duration
}

// AuthService implements the IdP-backed login, refresh, logout and current-user use cases.
type AuthService struct {
	idp      IdentityProvider
	users    UserRepo
	ledger   Ledger
	tracker  Tracker
	verifier RefreshVerifier
	roles    engine.RoleAssigner
	cfg      Config

	audit   audit.AuditLogger
	events  telemetry.EventEmitter
	metrics *telemetry.AuthMetrics
	ip      audit.IPExtractor
	tracer  trace.Tracer
	now     func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. Zero Config durations use defaults.
func NewAuthService(
	idp IdentityProvider,
	users UserRepo,
	ledger Ledger,
	tracker Tracker,
	verifier RefreshVerifier,
	roles engine.RoleAssigner,
	cfg Config,
) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.IdPTimeout <= 0 {
		cfg.IdPTimeout = defaultIdPTimeout
	}
	return &AuthService{
		idp:      idp,
		users:    users,
		ledger:   ledger,
		tracker:  tracker,
		verifier: verifier,
		roles:    roles,
		cfg:      cfg,
		tracer:   otel.Tracer("perfreview/backend/identity"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithAudit sets the audit logger and the client IP source used for security events.
func (s *AuthService) WithAudit(logger audit.AuditLogger, ip audit.IPExtractor) *AuthService {
	s.audit = logger
	s.ip = ip
	return s
}

// WithTelemetry sets the security event emitter and auth counters. Emit is called inline, so
// production wiring passes a *telemetry.Dispatcher.
func (s *AuthService) WithTelemetry(events telemetry.EventEmitter, metrics *telemetry.AuthMetrics) *AuthService {
	s.events = events
	s.metrics = metrics
	return s
}

// WithClock returns a copy of s that reads time from now.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	c := *s
	c.now = now
	return &c
}

// Authenticate completes the authorization-code flow. It exchanges code and verifier with the IdP,
// links or creates the local user, and opens a session with a fresh token pair. Failures are
// AuthenticationFailed except for an inactive account, which is UserDeactivated.
func (s *AuthService) Authenticate(ctx context.Context, code, verifier string, meta sessiondomain.DeviceMeta) (result *AuthResult, err error) {
	const op = "Authenticate"
	ctx, span := s.tracer.Start(ctx, "identity.Authenticate")
	defer func() {
		s.endSpan(span, err)
		s.metrics.Login(ctx, outcome(err))
		if err != nil {
			s.recordLoginFailure(ctx, err)
		}
	}()

	if strings.TrimSpace(code) == "" || strings.TrimSpace(verifier) == "" {
		return nil, fail(KindAuthenticationFailed, op, errors.New("authorization code and verifier are required"))
	}
	if err := meta.Validate(); err != nil {
		return nil, fail(KindAuthenticationFailed, op, err)
	}
	claims, err := s.identify(ctx, code, verifier)
	if err != nil {
		return nil, fail(KindAuthenticationFailed, op, err)
	}
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return nil, fail(KindAuthenticationFailed, op, err)
	}
	if !user.IsActive() {
		return nil, fail(KindUserDeactivated, op, fmt.Errorf("user %s is %s", user.ID, user.Status))
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	now := s.now()
	sess, err := s.tracker.CreateWithID(ctx, uuid.New().String(), user.ID, meta, now.Add(s.cfg.SessionTTL))
	if err != nil {
		return nil, fail(KindAuthenticationFailed, op, err)
	}
	pair, err := s.ledger.Issue(ctx, subjectOf(user), sess.ID)
	if err != nil {
		if rerr := s.tracker.Revoke(ctx, user.ID, sess.ID); rerr != nil {
			log.Printf("identity: cleanup session %s after failed issue: %v", sess.ID, rerr)
		}
		return nil, fail(KindAuthenticationFailed, op, err)
	}

	s.record(ctx, user.ID, sess.ID, auditdomain.ActionLogin, auditdomain.ResourceAuthentication, telemetrydomain.EventLogin, "")
	return &AuthResult{Tokens: pair, User: viewOf(user), SessionID: sess.ID}, nil
}

// RefreshTokens rotates a refresh token. The user must still exist and be active before the
// token is redeemed. Presenting an already redeemed token revokes every session of the user.
func (s *AuthService) RefreshTokens(ctx context.Context, rawRefresh string) (result *AuthResult, err error) {
	const op = "RefreshTokens"
	ctx, span := s.tracer.Start(ctx, "identity.RefreshTokens")
	defer func() {
		s.endSpan(span, err)
		s.metrics.Refresh(ctx, outcome(err))
	}()

	payload, err := s.verifier.VerifyRefresh(ctx, rawRefresh)
	if err != nil {
		return nil, fail(KindInvalidToken, op, err)
	}
	span.SetAttributes(attribute.String("user.id", payload.Subject), attribute.String("session.id", payload.SessionID))
	user, err := s.users.GetByID(ctx, payload.Subject)
	if err != nil {
		return nil, fmt.Errorf("refresh: get user: %w", err)
	}
	if user == nil {
		return nil, fail(KindUserNotFound, op, nil)
	}
	if !user.IsActive() {
		return nil, fail(KindUserDeactivated, op, nil)
	}

	pair, err := s.ledger.Redeem(ctx, rawRefresh, payload, subjectOf(user))
	switch {
	case errors.Is(err, refreshsvc.ErrTokenTheftDetected):
		s.metrics.TheftDetected(ctx)
		s.record(ctx, user.ID, payload.SessionID, auditdomain.ActionTokenTheft, auditdomain.ResourceSession,
			telemetrydomain.EventTokenTheft, "refresh token reuse; all sessions revoked")
		return nil, fail(KindTokenTheftDetected, op, err)
	case errors.Is(err, refreshsvc.ErrTokenExpired):
		return nil, fail(KindTokenExpired, op, err)
	case err != nil:
		return nil, fmt.Errorf("refresh: redeem: %w", err)
	}

	if err := s.tracker.Touch(ctx, payload.SessionID); err != nil {
		log.Printf("identity: touch session %s: %v", payload.SessionID, err)
	}
	s.record(ctx, user.ID, payload.SessionID, auditdomain.ActionRefresh, auditdomain.ResourceSession, telemetrydomain.EventRefresh, "")
	return &AuthResult{Tokens: pair, User: viewOf(user), SessionID: payload.SessionID}, nil
}

// Logout revokes every session and refresh token of userID. Logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, userID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "identity.Logout", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { s.endSpan(span, err) }()

	if userID == "" {
		return nil
	}
	if err := s.tracker.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.record(ctx, userID, "", auditdomain.ActionLogout, auditdomain.ResourceSession, telemetrydomain.EventLogout, "")
	return nil
}

// LogoutWithProviderToken logs out and then asks the IdP to revoke providerToken. The IdP call
// is best-effort: its failure is logged and does not fail the logout.
func (s *AuthService) LogoutWithProviderToken(ctx context.Context, userID, providerToken string) error {
	if err := s.Logout(ctx, userID); err != nil {
		return err
	}
	if providerToken == "" || s.idp == nil {
		return nil
	}
	idpCtx, cancel := context.WithTimeout(ctx, s.cfg.IdPTimeout)
	defer cancel()
	if err := s.idp.RevokeToken(idpCtx, providerToken); err != nil {
		log.Printf("identity: revoke provider token for user %s: %v", userID, err)
	}
	return nil
}

// GetCurrentUser returns the projection of userID.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (*identitydomain.UserView, error) {
	const op = "GetCurrentUser"
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	if user == nil {
		return nil, fail(KindUserNotFound, op, nil)
	}
	if !user.IsActive() {
		return nil, fail(KindUserDeactivated, op, nil)
	}
	v := viewOf(user)
	return &v, nil
}

// ListSessions returns the unexpired sessions of userID; currentSessionID is flagged.
func (s *AuthService) ListSessions(ctx context.Context, userID, currentSessionID string) ([]identitydomain.SessionView, error) {
	sessions, err := s.tracker.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]identitydomain.SessionView, len(sessions))
	for i, sess := range sessions {
		out[i] = identitydomain.SessionView{
			ID:        sess.ID,
			DeviceID:  sess.DeviceID,
			UserAgent: sess.UserAgent,
			IPAddress: sess.IPAddress,
			CreatedAt: sess.CreatedAt,
			LastUsed:  sess.LastUsed,
			ExpiresAt: sess.ExpiresAt,
			Current:   sess.ID == currentSessionID,
		}
	}
	return out, nil
}

// RevokeSession ends one session of userID together with its refresh tokens.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := s.tracker.Revoke(ctx, userID, sessionID); err != nil {
		if errors.Is(err, sessionsvc.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	s.record(ctx, userID, sessionID, auditdomain.ActionSessionRevoked, auditdomain.ResourceSession, telemetrydomain.EventSessionRevoke, "")
	return nil
}

// identify runs the code exchange and token validation, each bounded by the IdP timeout.
func (s *AuthService) identify(ctx context.Context, code, verifier string) (*identitydomain.ProviderClaims, error) {
	exCtx, cancel := context.WithTimeout(ctx, s.cfg.IdPTimeout)
	defer cancel()
	token, err := s.idp.ExchangeCode(exCtx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	vCtx, vCancel := context.WithTimeout(ctx, s.cfg.IdPTimeout)
	defer vCancel()
	claims, err := s.idp.ValidateToken(vCtx, token)
	if err != nil {
		return nil, fmt.Errorf("validate provider token: %w", err)
	}
	if !claims.Valid() {
		return nil, errors.New("provider claims lack subject or email")
	}
	return claims, nil
}

// resolveUser finds the user linked to the provider subject or creates one with the policy's
// default roles. An existing user gets email and name from the claims; roles are kept.
func (s *AuthService) resolveUser(ctx context.Context, claims *identitydomain.ProviderClaims) (*userdomain.User, error) {
	user, err := s.users.GetByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	now := s.now()
	if user != nil {
		if user.SyncProfile(claims.Email, claims.Name, now) {
			if err := s.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("sync user: %w", err)
			}
		}
		return user, nil
	}

	roles, err := s.roles.DefaultRoles(ctx, engine.RoleInput{
		ExternalID:    claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
		Groups:        claims.Groups,
	})
	if err != nil {
		return nil, fmt.Errorf("default roles: %w", err)
	}
	user, err = userdomain.NewUser(uuid.New().String(), claims.Subject, claims.Email, claims.Name, roles, now)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, userrepo.ErrDuplicateExternalID) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		// A concurrent first login created the user; use that row.
		existing, gerr := s.users.GetByExternalID(ctx, claims.Subject)
		if gerr != nil || existing == nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return existing, nil
	}
	log.Printf("identity: created user %s for subject %s with roles %v", user.ID, claims.Subject, roles)
	return user, nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, err error) {
	log.Printf("identity: login failed: %v", err)
	s.record(ctx, "", "", auditdomain.ActionLoginFailure, auditdomain.ResourceAuthentication,
		telemetrydomain.EventLoginFailure, string(KindOf(err)))
}

// record writes the audit row and emits the security event for a completed step.
func (s *AuthService) record(ctx context.Context, userID, sessionID, action, resource, eventType, detail string) {
	ip := ""
	if s.ip != nil {
		ip = s.ip(ctx)
	}
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, resource, metadata(sessionID, detail))
	}
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, telemetry.NewEvent(eventType, userID, sessionID, ip, detail)); err != nil {
		log.Printf("identity: security event %s: %v", eventType, err)
	}
}

func (s *AuthService) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
	span.End()
}

func metadata(sessionID, detail string) string {
	m := map[string]string{}
	if sessionID != "" {
		m["session_id"] = sessionID
	}
	if detail != "" {
		m["detail"] = detail
	}
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

func subjectOf(u *userdomain.User) refreshsvc.Subject {
	return refreshsvc.Subject{UserID: u.ID, Email: u.Email, Roles: u.Roles}
}

func viewOf(u *userdomain.User) identitydomain.UserView {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return identitydomain.UserView{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Roles:  roles,
		Status: string(u.Status),
	}
}
