package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"perfreview/backend/internal/db"
	"perfreview/backend/internal/session/domain"
)

type sessionRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	DeviceID  sql.NullString `db:"device_id"`
	UserAgent sql.NullString `db:"user_agent"`
	IPAddress sql.NullString `db:"ip_address"`
	ExpiresAt time.Time      `db:"expires_at"`
	CreatedAt time.Time      `db:"created_at"`
	LastUsed  time.Time      `db:"last_used"`
}

// host() strips the /32 or /128 suffix that inet::text would add.
const sessionColumns = `id, user_id, device_id, user_agent, host(ip_address) AS ip_address, expires_at, created_at, last_used`

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO sessions (id, user_id, device_id, user_agent, ip_address, expires_at, created_at, last_used)
	VALUES ($1, $2, $3, $4, $5::inet, $6, $7, $8)`,
		s.ID, s.UserID, db.NullString(s.DeviceID), db.NullString(s.UserAgent), db.NullString(s.IPAddress),
		s.ExpiresAt, s.CreatedAt, s.LastUsed,
	)
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s := rowToDomain(row)
	return &s, nil
}

// ListByUser returns all sessions for userID, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID); err != nil {
		return nil, err
	}
	out := make([]domain.Session, len(rows))
	for i := range rows {
		out[i] = rowToDomain(rows[i])
	}
	return out, nil
}

// UpdateLastUsed sets last_used for id when at is later than the stored value.
func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_used = $2 WHERE id = $1 AND last_used < $2`, id, at.UTC())
	return err
}

// Delete removes the session with id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
}

// DeleteAllByUser removes every session of userID.
func (r *PostgresRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func rowToDomain(row sessionRow) domain.Session {
	return domain.Rehydrate(row.ID, row.UserID, db.StringPtr(row.DeviceID), db.StringPtr(row.UserAgent),
		db.StringPtr(row.IPAddress), row.CreatedAt, row.ExpiresAt, row.LastUsed)
}
