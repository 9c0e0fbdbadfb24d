package repository

import (
	"context"
	"errors"
	"time"

	"perfreview/backend/internal/refreshtoken/domain"
)

// ErrAlreadyUsed is returned by MarkUsed when the conditional update matched no row: the record was
// already used, revoked or deleted by another caller.
var ErrAlreadyUsed = errors.New("refresh token already used")

// Repository defines persistence for refresh token records.
type Repository interface {
	Create(ctx context.Context, r domain.Record) error
	// GetByLookupKey returns the record for the token's lookup key, or nil if not found.
	GetByLookupKey(ctx context.Context, lookupKey string) (*domain.Record, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Record, error)
	// MarkUsed atomically flips used from false to true for an unrevoked record. Exactly one of any
	// number of concurrent callers succeeds; the others get ErrAlreadyUsed.
	MarkUsed(ctx context.Context, id string) error
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	// DeleteExpired removes records that are expired at now or revoked.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
