package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"perfreview/backend/internal/refreshtoken/domain"
)

// ErrDuplicateLookupKey is returned by MemoryRepository.Create for a lookup key already stored.
var ErrDuplicateLookupKey = errors.New("duplicate refresh token lookup key")

// MemoryRepository is an in-process Repository used when no database is configured and in tests.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]domain.Record
	byKey map[string]string
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]domain.Record), byKey: make(map[string]string)}
}

func (m *MemoryRepository) Create(ctx context.Context, r domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[r.LookupKey]; ok {
		return ErrDuplicateLookupKey
	}
	m.byID[r.ID] = r
	m.byKey[r.LookupKey] = r.ID
	return nil
}

func (m *MemoryRepository) GetByLookupKey(ctx context.Context, lookupKey string) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[lookupKey]
	if !ok {
		return nil, nil
	}
	r := m.byID[id]
	return &r, nil
}

func (m *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Record
	for _, r := range m.byID {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) MarkUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.Used || r.IsRevoked() {
		return ErrAlreadyUsed
	}
	m.byID[id] = r.MarkUsed()
	return nil
}

func (m *MemoryRepository) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.byID {
		if r.UserID == userID && !r.IsRevoked() {
			m.byID[id] = r.Revoke(at)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	return m.deleteWhere(func(r domain.Record) bool { return r.UserID == userID }), nil
}

func (m *MemoryRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	return m.deleteWhere(func(r domain.Record) bool { return sessionID != "" && r.SessionID == sessionID }), nil
}

func (m *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.deleteWhere(func(r domain.Record) bool { return r.IsExpired(now) || r.IsRevoked() }), nil
}

func (m *MemoryRepository) deleteWhere(match func(domain.Record) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.byID {
		if match(r) {
			delete(m.byID, id)
			delete(m.byKey, r.LookupKey)
			n++
		}
	}
	return n
}
