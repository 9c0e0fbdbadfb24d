// Package service implements one-time-use refresh token rotation with reuse detection.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"perfreview/backend/internal/refreshtoken/domain"
	"perfreview/backend/internal/refreshtoken/repository"
	"perfreview/backend/internal/security"
)

// Sentinel errors for the ledger; the orchestrator maps them to its error kinds.
var (
	// ErrTokenExpired covers every "this refresh token cannot be redeemed" case that is not reuse:
	// unknown, hash mismatch, expired or revoked.
	ErrTokenExpired = errors.New("refresh token expired or unknown")
	// ErrTokenTheftDetected is returned when an already redeemed token is presented again. All of the
	// user's sessions and refresh tokens have been revoked by the time it is returned.
	ErrTokenTheftDetected = errors.New("refresh token reuse detected; all sessions revoked")
)

// Subject is the identity a new pair is minted for.
type Subject struct {
	UserID string
	Email  string
	Roles  []string
}

// Issuer is the part of the token issuer the ledger needs.
type Issuer interface {
	IssuePair(ctx context.Context, userID, email string, roles []string, sessionID string) (*security.TokenPair, error)
}

// SessionRevoker tears down every session of a user together with its refresh tokens.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Ledger persists a hashed record for each refresh token it issues and redeems each at most once.
type Ledger struct {
	records  repository.Repository
	issuer   Issuer
	hasher   security.SecretHasher
	sessions SessionRevoker
	now      func() time.Time
}

// NewLedger returns a Ledger. sessions is used only for the reuse response.
func NewLedger(records repository.Repository, issuer Issuer, hasher security.SecretHasher, sessions SessionRevoker) *Ledger {
	return &Ledger{
		records:  records,
		issuer:   issuer,
		hasher:   hasher,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of l that reads time from now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	c := *l
	c.now = now
	return &c
}

// Issue mints a pair for subject and records the hash of its refresh token under the pair's jti.
func (l *Ledger) Issue(ctx context.Context, subject Subject, sessionID string) (*security.TokenPair, error) {
	pair, err := l.issuer.IssuePair(ctx, subject.UserID, subject.Email, subject.Roles, sessionID)
	if err != nil {
		return nil, err
	}
	hash, err := security.HashSecret(l.hasher, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}
	rec, err := domain.NewRecord(uuid.New().String(), subject.UserID, sessionID, pair.JTI, hash, l.now(), pair.RefreshExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := l.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return pair, nil
}

// Redeem consumes the refresh token raw, whose verified claims are presented, and returns a new pair
// for subject on the same session. A token that was already redeemed triggers full revocation of the
// owner's sessions and yields ErrTokenTheftDetected.
func (l *Ledger) Redeem(ctx context.Context, raw string, presented *security.TokenPayload, subject Subject) (*security.TokenPair, error) {
	if presented == nil || presented.JTI == "" {
		return nil, ErrTokenExpired
	}
	rec, err := l.records.GetByLookupKey(ctx, presented.JTI)
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rec == nil || rec.UserID != presented.Subject || !security.CompareSecret(l.hasher, rec.TokenHash, raw) {
		return nil, ErrTokenExpired
	}
	// An expired token is reported as expired even when it was used before.
	if rec.IsExpired(l.now()) {
		return nil, ErrTokenExpired
	}
	if rec.Used {
		return nil, l.revokeFamily(ctx, rec.UserID)
	}
	if rec.IsRevoked() {
		return nil, ErrTokenExpired
	}
	if err := l.records.MarkUsed(ctx, rec.ID); err != nil {
		if !errors.Is(err, repository.ErrAlreadyUsed) {
			return nil, fmt.Errorf("mark refresh token used: %w", err)
		}
		// Lost the race: someone else redeemed or revoked it between the read and the update.
		cur, gerr := l.records.GetByLookupKey(ctx, presented.JTI)
		if gerr == nil && cur != nil && cur.Used {
			return nil, l.revokeFamily(ctx, rec.UserID)
		}
		return nil, ErrTokenExpired
	}
	if subject.UserID == "" {
		subject.UserID = rec.UserID
	}
	return l.Issue(ctx, subject, rec.SessionID)
}

// Sweep deletes expired and revoked records and returns how many were removed.
func (l *Ledger) Sweep(ctx context.Context) (int64, error) {
	return l.records.DeleteExpired(ctx, l.now())
}

func (l *Ledger) revokeFamily(ctx context.Context, userID string) error {
	log.Printf("refreshtoken: reuse detected for user %s; revoking all sessions", userID)
	var errs []error
	if _, err := l.records.RevokeAllByUser(ctx, userID, l.now()); err != nil {
		errs = append(errs, fmt.Errorf("revoke refresh tokens: %w", err))
	}
	if l.sessions != nil {
		if err := l.sessions.RevokeAllForUser(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		log.Printf("refreshtoken: revoke after reuse for user %s: %v", userID, errors.Join(errs...))
	}
	return errors.Join(append([]error{ErrTokenTheftDetected}, errs...)...)
}
