package domain

import "time"

// Audit actions recorded by the auth flows. Route-derived actions from the HTTP middleware
// use the verb form returned by audit.ParseRoute.
const (
	ActionLogin          = "login"
	ActionLoginFailure   = "login_failure"
	ActionRefresh        = "refresh"
	ActionTokenTheft     = "token_theft_detected"
	ActionLogout         = "logout"
	ActionSessionRevoked = "session_revoked"
)

// Resources used with the actions above.
const (
	ResourceAuthentication = "authentication"
	ResourceSession        = "session"
)

// AuditLog represents an audit event. UserID is empty when the actor is unknown (e.g. login_failure).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
