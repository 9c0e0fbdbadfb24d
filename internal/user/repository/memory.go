package repository

import (
	"context"
	"sync"

	"perfreview/backend/internal/user/domain"
)

// MemoryRepository is an in-process Repository used when no database is configured and in tests.
// It stores copies, so callers cannot mutate stored users through returned pointers.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]domain.User
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]domain.User)}
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

func (m *MemoryRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return m.find(func(u domain.User) bool { return u.ExternalID == externalID }), nil
}

func (m *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.find(func(u domain.User) bool { return u.Email == email }), nil
}

func (m *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.ExternalID == u.ExternalID {
			return ErrDuplicateExternalID
		}
	}
	m.users[u.ID] = *clone(*u)
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		m.users[u.ID] = *clone(*u)
	}
	return nil
}

// Count returns the number of stored users.
func (m *MemoryRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *MemoryRepository) find(match func(domain.User) bool) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return clone(u)
		}
	}
	return nil
}

func clone(u domain.User) *domain.User {
	u.Roles = append([]string(nil), u.Roles...)
	return &u
}
