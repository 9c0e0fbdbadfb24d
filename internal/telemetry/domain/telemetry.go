package domain

import "time"

// Security event types emitted by the auth flows.
const (
	EventLogin         = "login"
	EventLoginFailure  = "login_failure"
	EventRefresh       = "refresh"
	EventTokenTheft    = "token_theft_detected"
	EventLogout        = "logout"
	EventSessionRevoke = "session_revoked"
)

// SecurityEvent is one auth-relevant occurrence, shipped to OTel logs and Kafka.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
