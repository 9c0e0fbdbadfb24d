package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"perfreview/backend/internal/db"
	"perfreview/backend/internal/refreshtoken/domain"
)

type refreshTokenRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	SessionID sql.NullString `db:"session_id"`
	LookupKey string         `db:"lookup_key"`
	TokenHash string         `db:"token_hash"`
	Used      bool           `db:"used"`
	ExpiresAt time.Time      `db:"expires_at"`
	CreatedAt time.Time      `db:"created_at"`
	RevokedAt sql.NullTime   `db:"revoked_at"`
}

const refreshTokenColumns = `id, user_id, session_id, lookup_key, token_hash, used, expires_at, created_at, revoked_at`

// PostgresRepository stores refresh token records in the refresh_tokens table.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a refresh token repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the record.
func (r *PostgresRepository) Create(ctx context.Context, rec domain.Record) error {
	var sessionID sql.NullString
	if rec.SessionID != "" {
		sessionID = sql.NullString{String: rec.SessionID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.UserID, sessionID, rec.LookupKey, rec.TokenHash, rec.Used,
		rec.ExpiresAt, rec.CreatedAt, db.NullTime(rec.RevokedAt),
	)
	return err
}

// GetByLookupKey returns the record for lookupKey, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByLookupKey(ctx context.Context, lookupKey string) (*domain.Record, error) {
	var row refreshTokenRow
	err := r.db.GetContext(ctx, &row, `SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE lookup_key = $1`, lookupKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec := rowToDomain(row)
	return &rec, nil
}

// ListByUser returns every record owned by userID, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.Record, error) {
	var rows []refreshTokenRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at`, userID); err != nil {
		return nil, err
	}
	out := make([]domain.Record, len(rows))
	for i := range rows {
		out[i] = rowToDomain(rows[i])
	}
	return out, nil
}

// MarkUsed is a single conditional UPDATE; the row count decides the winner.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET used = true WHERE id = $1 AND used = false AND revoked_at IS NULL`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrAlreadyUsed
	}
	return nil
}

// RevokeAllByUser sets revoked_at on every unrevoked record of userID.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return r.exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at.UTC())
}

// DeleteAllByUser deletes every record of userID.
func (r *PostgresRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
}

// DeleteBySession deletes the records issued for sessionID.
func (r *PostgresRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE session_id = $1`, sessionID)
}

// DeleteExpired deletes expired or revoked records.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1 OR revoked_at IS NOT NULL`, now.UTC())
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func rowToDomain(row refreshTokenRow) domain.Record {
	return domain.Rehydrate(row.ID, row.UserID, row.SessionID.String, row.LookupKey, row.TokenHash,
		row.Used, row.CreatedAt, row.ExpiresAt, db.TimePtr(row.RevokedAt))
}
