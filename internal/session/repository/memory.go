package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"perfreview/backend/internal/session/domain"
)

// MemoryRepository is an in-process Repository used when no database is configured and in tests.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]domain.Session)}
}

func (m *MemoryRepository) Create(ctx context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		m.sessions[id] = s.TouchLastUsed(at)
	}
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) (int64, error) {
	return m.deleteWhere(func(s domain.Session) bool { return s.ID == id }), nil
}

func (m *MemoryRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	return m.deleteWhere(func(s domain.Session) bool { return s.UserID == userID }), nil
}

func (m *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.deleteWhere(func(s domain.Session) bool { return s.IsExpired(now) }), nil
}

func (m *MemoryRepository) deleteWhere(match func(domain.Session) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if match(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
