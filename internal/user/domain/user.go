package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the local account linked to one identity at the external provider.
type User struct {
	ID         string
	ExternalID string // subject claim issued by the identity provider
	Email      string
	Name       string
	Roles      []string
	Status     UserStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// NewUser returns an active user for a first-time login.
func NewUser(id, externalID, email, name string, roles []string, now time.Time) (*User, error) {
	now = now.UTC()
	u := &User{
		ID:         id,
		ExternalID: strings.TrimSpace(externalID),
		Email:      normalizeEmail(email),
		Name:       strings.TrimSpace(name),
		Roles:      append([]string(nil), roles...),
		Status:     UserStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.ExternalID == "" {
		return errors.New("external id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Status != UserStatusActive && u.Status != UserStatusDisabled {
		return errors.New("unknown user status")
	}
	return nil
}

// IsActive reports whether the user may log in.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// SyncProfile copies email and name from the provider, leaving roles and status untouched.
// It reports whether anything changed.
func (u *User) SyncProfile(email, name string, at time.Time) bool {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	changed := false
	if email != "" && email != u.Email {
		u.Email = email
		changed = true
	}
	if name != "" && name != u.Name {
		u.Name = name
		changed = true
	}
	if changed {
		u.UpdatedAt = at.UTC()
	}
	return changed
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
