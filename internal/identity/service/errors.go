package service

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure outcomes of the auth use cases.
type Kind string

const (
	KindAuthenticationFailed Kind = "AuthenticationFailed"
	KindUserDeactivated      Kind = "UserDeactivated"
	KindUserNotFound         Kind = "UserNotFound"
	KindTokenExpired         Kind = "TokenExpired"
	KindTokenTheftDetected   Kind = "TokenTheftDetected"
	KindInvalidToken         Kind = "InvalidToken"
)

// Error is a use-case failure tagged with its Kind. Err holds the cause for logs; it is never shown to clients.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrTokenExpired) works on tagged errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrUserDeactivated      = &Error{Kind: KindUserDeactivated}
	ErrUserNotFound         = &Error{Kind: KindUserNotFound}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrTokenTheftDetected   = &Error{Kind: KindTokenTheftDetected}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken}
)

// KindOf returns the Kind carried by err, or "" when err is not a use-case failure
// (for example a storage outage).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func fail(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}
