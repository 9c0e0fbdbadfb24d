package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"perfreview/backend/internal/session/domain"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

var sessionCols = []string{"id", "user_id", "device_id", "user_agent", "ip_address", "expires_at", "created_at", "last_used"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewPostgresRepository(sqlx.NewDb(sqlDB, "pgx")), mock
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	s, err := domain.NewSession("s1", "u1", domain.NewDeviceMeta("d1", "", "10.0.0.1"), now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs("s1", "u1", "d1", nil, "10.0.0.1", now.Add(time.Hour), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s1", "u1", nil, "curl/8", "10.0.0.1", now.Add(time.Hour), now, now.Add(time.Minute)))

	s, err := repo.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if s == nil || s.DeviceID != nil || *s.UserAgent != "curl/8" || *s.IPAddress != "10.0.0.1" {
		t.Fatalf("GetByID = %+v", s)
	}
	if !s.LastUsed.Equal(now.Add(time.Minute)) {
		t.Errorf("LastUsed = %v", s.LastUsed)
	}
}

func TestPostgresRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	s, err := repo.GetByID(context.Background(), "missing")
	if err != nil || s != nil {
		t.Fatalf("GetByID = %v, %v; want nil, nil", s, err)
	}
}

func TestPostgresRepository_ListByUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE user_id = $1 ORDER BY created_at DESC")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s2", "u1", "d2", nil, nil, now.Add(2*time.Hour), now.Add(time.Minute), now.Add(time.Minute)).
			AddRow("s1", "u1", "d1", nil, nil, now.Add(time.Hour), now, now))

	list, err := repo.ListByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" || *list[1].DeviceID != "d1" {
		t.Fatalf("ListByUser = %+v", list)
	}
}

func TestPostgresRepository_Deletes(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE id = $1")).WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1")).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= $1")).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 2))

	if n, err := repo.Delete(ctx, "s1"); err != nil || n != 1 {
		t.Errorf("Delete = %d, %v", n, err)
	}
	if n, err := repo.DeleteAllByUser(ctx, "u1"); err != nil || n != 3 {
		t.Errorf("DeleteAllByUser = %d, %v", n, err)
	}
	if n, err := repo.DeleteExpired(ctx, now); err != nil || n != 2 {
		t.Errorf("DeleteExpired = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresRepository_UpdateLastUsed(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET last_used = $2 WHERE id = $1 AND last_used < $2")).
		WithArgs("s1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateLastUsed(context.Background(), "s1", now); err != nil {
		t.Fatalf("UpdateLastUsed: %v", err)
	}
}

func TestPostgresRepository_DBError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions")).WillReturnError(errors.New("connection reset"))

	if _, err := repo.DeleteAllByUser(context.Background(), "u1"); err == nil {
		t.Fatal("expected driver error")
	}
}
