package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestNewSession_Valid(t *testing.T) {
	meta := NewDeviceMeta("laptop-1", "Mozilla/5.0", "2001:db8::1")
	s, err := NewSession("s1", "u1", meta, t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !s.LastUsed.Equal(t0) {
		t.Errorf("LastUsed = %v, want createdAt", s.LastUsed)
	}
	if s.DeviceID == meta.DeviceID {
		t.Error("NewSession must copy metadata pointers")
	}
	if *s.IPAddress != "2001:db8::1" {
		t.Errorf("IPAddress = %q", *s.IPAddress)
	}
}

func TestNewSession_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		userID  string
		meta    DeviceMeta
		expires time.Time
		want    error
	}{
		{"missing id", "", "u1", DeviceMeta{}, t0.Add(time.Hour), ErrInvalidSession},
		{"missing user", "s1", "", DeviceMeta{}, t0.Add(time.Hour), ErrInvalidSession},
		{"expiry not after creation", "s1", "u1", DeviceMeta{}, t0, ErrInvalidSession},
		{"user agent too long", "s1", "u1", DeviceMeta{UserAgent: strPtr(strings.Repeat("a", 501))}, t0.Add(time.Hour), ErrInvalidDeviceMeta},
		{"hostname is not an ip", "s1", "u1", DeviceMeta{IPAddress: strPtr("localhost")}, t0.Add(time.Hour), ErrInvalidDeviceMeta},
		{"ipv4 out of range", "s1", "u1", DeviceMeta{IPAddress: strPtr("256.1.1.1")}, t0.Add(time.Hour), ErrInvalidDeviceMeta},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.id, tt.userID, tt.meta, t0, tt.expires)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewSession_UserAgentBoundary(t *testing.T) {
	meta := DeviceMeta{UserAgent: strPtr(strings.Repeat("a", 500))}
	if _, err := NewSession("s1", "u1", meta, t0, t0.Add(time.Hour)); err != nil {
		t.Fatalf("500-character user agent should be accepted: %v", err)
	}
}

func TestNewDeviceMeta_EmptyIsAbsent(t *testing.T) {
	m := NewDeviceMeta("", "  ", "")
	if m.DeviceID != nil || m.UserAgent != nil || m.IPAddress != nil {
		t.Errorf("empty values should be nil: %+v", m)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("empty meta should validate: %v", err)
	}
}

func TestIsFromSameDevice(t *testing.T) {
	noDevice, _ := NewSession("s1", "u1", DeviceMeta{}, t0, t0.Add(time.Hour))
	withDevice, _ := NewSession("s2", "u1", NewDeviceMeta("d1", "", ""), t0, t0.Add(time.Hour))

	if !noDevice.IsFromSameDevice(nil) {
		t.Error("nil device vs nil should be the same device")
	}
	if withDevice.IsFromSameDevice(nil) {
		t.Error("d1 vs nil should not be the same device")
	}
	if noDevice.IsFromSameDevice(strPtr("d1")) {
		t.Error("nil vs d1 should not be the same device")
	}
	if !withDevice.IsFromSameDevice(strPtr("d1")) || withDevice.IsFromSameDevice(strPtr("d2")) {
		t.Error("device ids should compare by value")
	}
}

func TestTouchLastUsed(t *testing.T) {
	s, _ := NewSession("s1", "u1", DeviceMeta{}, t0, t0.Add(time.Hour))
	touched := s.TouchLastUsed(t0.Add(time.Minute))
	if !s.LastUsed.Equal(t0) {
		t.Error("TouchLastUsed must not mutate the receiver")
	}
	if !touched.LastUsed.Equal(t0.Add(time.Minute)) {
		t.Errorf("LastUsed = %v", touched.LastUsed)
	}
	if back := touched.TouchLastUsed(t0); !back.LastUsed.Equal(t0.Add(time.Minute)) {
		t.Error("LastUsed moved backwards")
	}
}

func TestIsExpired(t *testing.T) {
	s, _ := NewSession("s1", "u1", DeviceMeta{}, t0, t0.Add(time.Hour))
	if s.IsExpired(t0.Add(59 * time.Minute)) {
		t.Error("not yet expired")
	}
	if !s.IsExpired(t0.Add(time.Hour)) {
		t.Error("expired at ExpiresAt")
	}
}
