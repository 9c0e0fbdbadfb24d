package domain

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func validRecord(t *testing.T) Record {
	t.Helper()
	r, err := NewRecord("r1", "u1", "s1", "jti-1", "hash", t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return r
}

func TestNewRecord_Valid(t *testing.T) {
	r := validRecord(t)
	if r.Used || r.RevokedAt != nil {
		t.Error("new record must be unused and unrevoked")
	}
	if r.State(t0) != StateActive {
		t.Errorf("State = %s, want ACTIVE", r.State(t0))
	}
}

func TestNewRecord_Invariants(t *testing.T) {
	tests := []struct {
		name                string
		id, user, key, hash string
		created, expires    time.Time
	}{
		{"missing id", "", "u1", "k", "h", t0, t0.Add(time.Minute)},
		{"missing user", "r1", "", "k", "h", t0, t0.Add(time.Minute)},
		{"missing key", "r1", "u1", "", "h", t0, t0.Add(time.Minute)},
		{"missing hash", "r1", "u1", "k", "", t0, t0.Add(time.Minute)},
		{"expires equals created", "r1", "u1", "k", "h", t0, t0},
		{"expires before created", "r1", "u1", "k", "h", t0, t0.Add(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecord(tt.id, tt.user, "", tt.key, tt.hash, tt.created, tt.expires)
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("err = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestRecord_MarkUsedReturnsCopy(t *testing.T) {
	r := validRecord(t)
	used := r.MarkUsed()
	if r.Used {
		t.Error("MarkUsed must not mutate the receiver")
	}
	if !used.Used || used.State(t0) != StateUsed {
		t.Errorf("used record state = %s", used.State(t0))
	}
	if !used.MarkUsed().Used {
		t.Error("Used must stay true")
	}
}

func TestRecord_RevokeIsImmutableOnceSet(t *testing.T) {
	r := validRecord(t)
	first := r.Revoke(t0.Add(time.Minute))
	second := first.Revoke(t0.Add(time.Hour))
	if !second.RevokedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("RevokedAt changed to %v", second.RevokedAt)
	}
	if r.IsRevoked() {
		t.Error("Revoke must not mutate the receiver")
	}
	if got := r.MarkUsed().Revoke(t0).State(t0); got != StateRevoked {
		t.Errorf("USED -> REVOKED: State = %s", got)
	}
}

func TestRecord_Expiry(t *testing.T) {
	r := validRecord(t)
	if r.IsExpired(t0.Add(59 * time.Minute)) {
		t.Error("not yet expired")
	}
	if !r.IsExpired(t0.Add(time.Hour)) {
		t.Error("expired at ExpiresAt")
	}
	if r.State(t0.Add(2*time.Hour)) != StateExpired {
		t.Errorf("State = %s, want EXPIRED", r.State(t0.Add(2*time.Hour)))
	}
}

func TestRehydrate(t *testing.T) {
	rev := t0.Add(time.Minute)
	r := Rehydrate("r1", "u1", "", "k", "h", true, t0, t0.Add(time.Hour), &rev)
	if !r.Used || !r.IsRevoked() {
		t.Errorf("Rehydrate lost state: %+v", r)
	}
	rev = rev.Add(time.Hour)
	if r.RevokedAt.Equal(rev) {
		t.Error("Rehydrate must copy revokedAt")
	}
}
