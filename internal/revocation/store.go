// Package revocation holds the jti revocation set consulted by the token issuer. Entries live for
// the remaining validity of the tokens they revoke; after that the token fails its expiry check anyway.
package revocation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmptyJTI is returned when revoking an empty jti.
var ErrEmptyJTI = errors.New("revocation: empty jti")

// Store is a jti revocation set with per-entry TTL.
type Store interface {
	// Revoke adds jti for ttl. Revoking an already revoked jti never shortens its lifetime in memory
	// and postgres; redis resets the key's TTL.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether jti is present and not expired.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Sweeper drops expired entries from backends that do not expire keys on their own.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// MemoryStore is a process-wide in-memory Store. It is only correct for a single instance and does
// not survive restarts; shared deployments use RedisStore or PostgresStore.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]time.Time
	nowF func() time.Time
}

// NewMemoryStore returns an empty in-memory revocation set.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an empty in-memory revocation set using now for expiry.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{m: make(map[string]time.Time), nowF: now}
}

// Revoke adds jti until now+ttl, keeping the later expiry if jti is already present.
func (s *MemoryStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return ErrEmptyJTI
	}
	if ttl <= 0 {
		return nil
	}
	exp := s.nowF().Add(ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[jti]; !ok || exp.After(cur) {
		s.m[jti] = exp
	}
	return nil
}

// IsRevoked reports whether jti is revoked. Expired entries are removed lazily.
func (s *MemoryStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.RLock()
	exp, ok := s.m[jti]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !exp.After(s.nowF()) {
		s.mu.Lock()
		if cur, still := s.m[jti]; still && !cur.After(s.nowF()) {
			delete(s.m, jti)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// DeleteExpired removes all expired entries and returns how many were dropped.
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, exp := range s.m {
		if !exp.After(now) {
			delete(s.m, jti)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
