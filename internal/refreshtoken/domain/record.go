// Package domain holds the refresh token record, the persisted half of one-time-use rotation.
package domain

import (
	"errors"
	"time"
)

// ErrInvalidRecord is returned by NewRecord when an invariant does not hold.
var ErrInvalidRecord = errors.New("invalid refresh token record")

// State is the lifecycle state of a record. USED, REVOKED and EXPIRED are terminal.
type State string

const (
	StateActive  State = "ACTIVE"
	StateUsed    State = "USED"
	StateRevoked State = "REVOKED"
	StateExpired State = "EXPIRED"
)

// Record is one issued refresh token. The raw secret is never stored: TokenHash is a slow salted hash
// and LookupKey is the token's non-secret jti, used to find the record without scanning.
// Record is a value; mutation methods return a modified copy.
type Record struct {
	ID        string
	UserID    string
	SessionID string
	LookupKey string
	TokenHash string
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// NewRecord returns an active record after checking its invariants.
func NewRecord(id, userID, sessionID, lookupKey, tokenHash string, createdAt, expiresAt time.Time) (Record, error) {
	switch {
	case id == "":
		return Record{}, errors.Join(ErrInvalidRecord, errors.New("id is required"))
	case userID == "":
		return Record{}, errors.Join(ErrInvalidRecord, errors.New("user id is required"))
	case lookupKey == "":
		return Record{}, errors.Join(ErrInvalidRecord, errors.New("lookup key is required"))
	case tokenHash == "":
		return Record{}, errors.Join(ErrInvalidRecord, errors.New("token hash is required"))
	case !expiresAt.After(createdAt):
		return Record{}, errors.Join(ErrInvalidRecord, errors.New("expiresAt must be after createdAt"))
	}
	return Record{
		ID:        id,
		UserID:    userID,
		SessionID: sessionID,
		LookupKey: lookupKey,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: createdAt.UTC(),
	}, nil
}

// Rehydrate rebuilds a record loaded from storage without re-running creation checks.
func Rehydrate(id, userID, sessionID, lookupKey, tokenHash string, used bool, createdAt, expiresAt time.Time, revokedAt *time.Time) Record {
	r := Record{
		ID:        id,
		UserID:    userID,
		SessionID: sessionID,
		LookupKey: lookupKey,
		TokenHash: tokenHash,
		Used:      used,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: createdAt.UTC(),
	}
	if revokedAt != nil {
		t := revokedAt.UTC()
		r.RevokedAt = &t
	}
	return r
}

// MarkUsed returns the record with Used set. Used never goes back to false.
func (r Record) MarkUsed() Record {
	r.Used = true
	return r
}

// Revoke returns the record with RevokedAt set to at, unless it was already revoked.
func (r Record) Revoke(at time.Time) Record {
	if r.RevokedAt != nil {
		return r
	}
	t := at.UTC()
	r.RevokedAt = &t
	return r
}

// IsExpired reports whether now is at or past ExpiresAt.
func (r Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsRevoked reports whether the record has been revoked.
func (r Record) IsRevoked() bool {
	return r.RevokedAt != nil
}

// State derives the lifecycle state at now. Revocation takes precedence over use, use over expiry.
func (r Record) State(now time.Time) State {
	switch {
	case r.IsRevoked():
		return StateRevoked
	case r.Used:
		return StateUsed
	case r.IsExpired(now):
		return StateExpired
	default:
		return StateActive
	}
}
