package repository

import (
	"context"
	"errors"

	"perfreview/backend/internal/user/domain"
)

// ErrDuplicateExternalID is returned by Create when a user for the external id already exists.
var ErrDuplicateExternalID = errors.New("user with external id already exists")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// Update writes email, name, roles and status.
	Update(ctx context.Context, u *domain.User) error
}
