package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	refreshdomain "perfreview/backend/internal/refreshtoken/domain"
	"perfreview/backend/internal/session/domain"
)

// ErrSessionNotFound is returned by Revoke when the session does not exist or belongs to another user.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepo is the minimal session repository needed by the tracker.
type SessionRepo interface {
	Create(ctx context.Context, s domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) (int64, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshRecords is the part of the refresh token repository the tracker cascades into.
type RefreshRecords interface {
	ListByUser(ctx context.Context, userID string) ([]refreshdomain.Record, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

// TokenRevoker puts a jti on the revocation list so already-issued access tokens stop verifying.
type TokenRevoker interface {
	RevokeByID(ctx context.Context, jti string) error
}

// Tracker records sessions per login and revokes them together with their refresh tokens.
type Tracker struct {
	sessions SessionRepo
	records  RefreshRecords
	revoker  TokenRevoker
	now      func() time.Time
}

// NewTracker returns a Tracker. revoker may be nil, in which case outstanding access tokens
// stay valid until they expire.
func NewTracker(sessions SessionRepo, records RefreshRecords, revoker TokenRevoker) *Tracker {
	return &Tracker{
		sessions: sessions,
		records:  records,
		revoker:  revoker,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of t that reads time from now.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	c := *t
	c.now = now
	return &c
}

// Create records a new session with a generated id.
func (t *Tracker) Create(ctx context.Context, userID string, meta domain.DeviceMeta, expiresAt time.Time) (*domain.Session, error) {
	return t.CreateWithID(ctx, uuid.New().String(), userID, meta, expiresAt)
}

// CreateWithID records a session under a caller-chosen id, so the id can be embedded in a token
// pair before the session row exists.
func (t *Tracker) CreateWithID(ctx context.Context, id, userID string, meta domain.DeviceMeta, expiresAt time.Time) (*domain.Session, error) {
	s, err := domain.NewSession(id, userID, meta, t.now(), expiresAt)
	if err != nil {
		return nil, err
	}
	if err := t.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

// RevokeAllForUser deletes every session of userID and, transitively, every refresh token record,
// after putting the records' jtis on the revocation list. Calling it again is a no-op.
// All steps are attempted; the returned error joins whatever failed.
func (t *Tracker) RevokeAllForUser(ctx context.Context, userID string) error {
	var errs []error
	records, err := t.records.ListByUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list refresh tokens: %w", err))
	}
	errs = append(errs, t.revokeJTIs(ctx, records)...)
	sessions, err := t.sessions.DeleteAllByUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete sessions: %w", err))
	}
	tokens, err := t.records.DeleteAllByUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete refresh tokens: %w", err))
	}
	if sessions > 0 || tokens > 0 {
		log.Printf("session: revoked %d sessions and %d refresh tokens for user %s", sessions, tokens, userID)
	}
	return errors.Join(errs...)
}

// Revoke ends a single session of userID and deletes the refresh tokens issued for it.
func (t *Tracker) Revoke(ctx context.Context, userID, sessionID string) error {
	s, err := t.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil || s.UserID != userID {
		return ErrSessionNotFound
	}
	records, err := t.records.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list refresh tokens: %w", err)
	}
	var own []refreshdomain.Record
	for _, r := range records {
		if r.SessionID == sessionID {
			own = append(own, r)
		}
	}
	errs := t.revokeJTIs(ctx, own)
	if _, err := t.sessions.Delete(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete session: %w", err))
	}
	if _, err := t.records.DeleteBySession(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete refresh tokens: %w", err))
	}
	return errors.Join(errs...)
}

// ListActive returns the sessions of userID that have not expired. Storage is not modified.
func (t *Tracker) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	all, err := t.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	active := make([]domain.Session, 0, len(all))
	for _, s := range all {
		if !s.IsExpired(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

// Touch moves the session's last-used time to now. A missing session is ignored.
func (t *Tracker) Touch(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return t.sessions.UpdateLastUsed(ctx, sessionID, t.now())
}

// Sweep deletes expired sessions and returns how many were removed.
func (t *Tracker) Sweep(ctx context.Context) (int64, error) {
	return t.sessions.DeleteExpired(ctx, t.now())
}

func (t *Tracker) revokeJTIs(ctx context.Context, records []refreshdomain.Record) []error {
	if t.revoker == nil {
		return nil
	}
	var errs []error
	for _, r := range records {
		if err := t.revoker.RevokeByID(ctx, r.LookupKey); err != nil {
			errs = append(errs, fmt.Errorf("revoke jti: %w", err))
		}
	}
	return errs
}
