package repository

import (
	"context"
	"testing"
	"time"

	"perfreview/backend/internal/session/domain"
)

func mustSession(t *testing.T, id, userID string, created time.Time, ttl time.Duration) domain.Session {
	t.Helper()
	s, err := domain.NewSession(id, userID, domain.DeviceMeta{}, created, created.Add(ttl))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestMemoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Create(ctx, mustSession(t, "s1", "u1", now, time.Hour))
	_ = repo.Create(ctx, mustSession(t, "s2", "u1", now.Add(time.Minute), time.Minute))
	_ = repo.Create(ctx, mustSession(t, "s3", "u2", now, time.Hour))

	list, _ := repo.ListByUser(ctx, "u1")
	if len(list) != 2 || list[0].ID != "s2" {
		t.Fatalf("ListByUser = %+v, want newest first", list)
	}

	if err := repo.UpdateLastUsed(ctx, "s1", now.Add(5*time.Minute)); err != nil {
		t.Fatalf("UpdateLastUsed: %v", err)
	}
	if err := repo.UpdateLastUsed(ctx, "missing", now); err != nil {
		t.Fatalf("UpdateLastUsed on missing session: %v", err)
	}
	s, _ := repo.GetByID(ctx, "s1")
	if s == nil || !s.LastUsed.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("GetByID after touch = %+v", s)
	}

	if n, _ := repo.DeleteExpired(ctx, now.Add(2*time.Minute)); n != 1 {
		t.Errorf("DeleteExpired = %d, want 1", n)
	}
	if n, _ := repo.DeleteAllByUser(ctx, "u1"); n != 1 {
		t.Errorf("DeleteAllByUser = %d, want 1", n)
	}
	if n, _ := repo.DeleteAllByUser(ctx, "u1"); n != 0 {
		t.Errorf("second DeleteAllByUser = %d, want 0", n)
	}
	if s, _ := repo.GetByID(ctx, "s3"); s == nil {
		t.Error("other user's session must survive")
	}
}
