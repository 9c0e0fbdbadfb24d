package repository

import (
	"context"
	"time"

	"perfreview/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	Create(ctx context.Context, s domain.Session) error
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByUser returns every stored session of userID including expired ones, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	// UpdateLastUsed moves last_used forward to at. A missing session is not an error.
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) (int64, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
