// Package domain holds the session record created at each login.
package domain

import (
	"errors"
	"strings"
	"time"

	"perfreview/backend/internal/platform/validate"
)

var (
	// ErrInvalidSession is returned by NewSession when an invariant does not hold.
	ErrInvalidSession = errors.New("invalid session")
	// ErrInvalidDeviceMeta is returned for a user agent over 500 characters or a malformed IP literal.
	ErrInvalidDeviceMeta = errors.New("invalid device metadata")
)

// DeviceMeta is the optional client metadata captured at authentication time.
type DeviceMeta struct {
	DeviceID  *string `json:"device_id" validate:"omitempty,max=255"`
	UserAgent *string `json:"user_agent" validate:"omitempty,max=500"`
	IPAddress *string `json:"ip_address" validate:"omitempty,ip"`
}

// NewDeviceMeta trims its inputs and treats empty values as absent.
func NewDeviceMeta(deviceID, userAgent, ipAddress string) DeviceMeta {
	return DeviceMeta{
		DeviceID:  optional(deviceID),
		UserAgent: optional(userAgent),
		IPAddress: optional(ipAddress),
	}
}

// Validate reports ErrInvalidDeviceMeta with the offending fields.
func (m DeviceMeta) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errors.Join(ErrInvalidDeviceMeta, err)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Session represents one login of a user on a device. Session is a value; TouchLastUsed returns a copy.
type Session struct {
	ID        string
	UserID    string
	DeviceID  *string
	UserAgent *string
	IPAddress *string
	ExpiresAt time.Time
	CreatedAt time.Time
	LastUsed  time.Time
}

// NewSession validates meta and the expiry window and returns a session whose LastUsed is createdAt.
func NewSession(id, userID string, meta DeviceMeta, createdAt, expiresAt time.Time) (Session, error) {
	switch {
	case id == "":
		return Session{}, errors.Join(ErrInvalidSession, errors.New("id is required"))
	case userID == "":
		return Session{}, errors.Join(ErrInvalidSession, errors.New("user id is required"))
	case !expiresAt.After(createdAt):
		return Session{}, errors.Join(ErrInvalidSession, errors.New("expiresAt must be after createdAt"))
	}
	if err := meta.Validate(); err != nil {
		return Session{}, err
	}
	return Session{
		ID:        id,
		UserID:    userID,
		DeviceID:  copyString(meta.DeviceID),
		UserAgent: copyString(meta.UserAgent),
		IPAddress: copyString(meta.IPAddress),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: createdAt.UTC(),
		LastUsed:  createdAt.UTC(),
	}, nil
}

// Rehydrate rebuilds a session loaded from storage without re-running creation checks.
func Rehydrate(id, userID string, deviceID, userAgent, ipAddress *string, createdAt, expiresAt, lastUsed time.Time) Session {
	return Session{
		ID:        id,
		UserID:    userID,
		DeviceID:  copyString(deviceID),
		UserAgent: copyString(userAgent),
		IPAddress: copyString(ipAddress),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: createdAt.UTC(),
		LastUsed:  lastUsed.UTC(),
	}
}

// IsFromSameDevice compares device ids. Two absent ids are the same device; absent and present are not.
func (s Session) IsFromSameDevice(deviceID *string) bool {
	if s.DeviceID == nil || deviceID == nil {
		return s.DeviceID == nil && deviceID == nil
	}
	return *s.DeviceID == *deviceID
}

// TouchLastUsed returns the session with LastUsed moved to at. LastUsed never moves backwards.
func (s Session) TouchLastUsed(at time.Time) Session {
	if at.After(s.LastUsed) {
		s.LastUsed = at.UTC()
	}
	return s
}

// IsExpired reports whether now is at or past ExpiresAt.
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
