package domain

import (
	"strings"
	"time"
)

// ProviderToken is what the external identity provider returns from the code exchange.
// It is only used to read the user's identity and is never handed to clients.
type ProviderToken struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Expiry       time.Time
}

// ProviderClaims is the identity asserted by the provider for a validated token.
type ProviderClaims struct {
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
	Groups        []string
}

// Valid reports whether the claims carry enough to link a local user.
func (c *ProviderClaims) Valid() bool {
	return c != nil && strings.TrimSpace(c.Subject) != "" && strings.TrimSpace(c.Email) != ""
}

// UserView is the projection of a local user returned to clients.
type UserView struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
	Status string   `json:"status"`
}

// SessionView is the projection of a session returned to clients.
type SessionView struct {
	ID        string    `json:"id"`
	DeviceID  *string   `json:"device_id,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	IPAddress *string   `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}
