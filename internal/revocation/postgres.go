package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps revoked jtis in the revoked_tokens table.
type PostgresStore struct {
	db   *sqlx.DB
	nowF func() time.Time
}

// NewPostgresStore returns a Store backed by db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, nowF: time.Now}
}

// Revoke inserts jti, keeping the later expiry on conflict.
func (s *PostgresStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return ErrEmptyJTI
	}
	if ttl <= 0 {
		return nil
	}
	const q = `
	INSERT INTO revoked_tokens (jti, expires_at)
	VALUES ($1, $2)
	ON CONFLICT (jti) DO UPDATE SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)`
	if _, err := s.db.ExecContext(ctx, q, jti, s.nowF().UTC().Add(ttl)); err != nil {
		return fmt.Errorf("revocation: insert: %w", err)
	}
	return nil
}

// IsRevoked reports whether an unexpired row exists for jti.
func (s *PostgresStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > $2)`
	var exists bool
	if err := s.db.GetContext(ctx, &exists, q, jti, s.nowF().UTC()); err != nil {
		return false, fmt.Errorf("revocation: lookup: %w", err)
	}
	return exists, nil
}

// DeleteExpired removes rows whose expiry has passed.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, s.nowF().UTC())
	if err != nil {
		return 0, fmt.Errorf("revocation: cleanup: %w", err)
	}
	return res.RowsAffected()
}
