package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfreview/backend/internal/audit/domain"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestPostgresRepository_CreateNullsEmptyFields(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	repo := NewPostgresRepository(sqlx.NewDb(sqlDB, "pgx"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs("a1", nil, domain.ActionLoginFailure, domain.ResourceAuthentication, "10.0.0.1", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Create(context.Background(), &domain.AuditLog{
		ID: "a1", Action: domain.ActionLoginFailure, Resource: domain.ResourceAuthentication,
		IP: "10.0.0.1", CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByUser(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	repo := NewPostgresRepository(sqlx.NewDb(sqlDB, "pgx"))

	cols := []string{"id", "user_id", "action", "resource", "ip", "metadata", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE user_id = $1")).
		WithArgs("u1", 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a2", "u1", domain.ActionLogout, domain.ResourceSession, "10.0.0.1", nil, now.Add(time.Minute)).
			AddRow("a1", "u1", domain.ActionLogin, domain.ResourceAuthentication, "10.0.0.1", `{"session_id":"s1"}`, now))

	list, err := repo.ListByUser(context.Background(), "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.ActionLogout, list[0].Action)
	assert.Equal(t, "", list[0].Metadata)
	assert.Equal(t, `{"session_id":"s1"}`, list[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepository_ListByUser(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for i, action := range []string{domain.ActionLogin, domain.ActionRefresh, domain.ActionLogout} {
		require.NoError(t, repo.Create(ctx, &domain.AuditLog{ID: action, UserID: "u1", Action: action, CreatedAt: now.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, repo.Create(ctx, &domain.AuditLog{ID: "other", UserID: "u2", Action: domain.ActionLogin, CreatedAt: now}))

	list, err := repo.ListByUser(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.ActionLogout, list[0].Action)
	assert.Equal(t, domain.ActionRefresh, list[1].Action)

	list, err = repo.ListByUser(ctx, "u1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, []string{domain.ActionLogin, domain.ActionRefresh, domain.ActionLogout, domain.ActionLogin}, repo.Actions())
}
