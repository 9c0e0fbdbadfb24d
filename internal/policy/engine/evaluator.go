package engine

import "context"

// RoleInput is what a role policy sees about a first-time user.
type RoleInput struct {
	ExternalID    string
	Email         string
	Name          string
	EmailVerified bool
	Groups        []string
}

// RoleAssigner decides the roles a user gets when their local account is first created.
// Roles of existing users are never recomputed.
type RoleAssigner interface {
	DefaultRoles(ctx context.Context, in RoleInput) ([]string, error)
}

// StaticRoles assigns the same roles to everyone.
type StaticRoles []string

// DefaultRoles returns a copy of r.
func (r StaticRoles) DefaultRoles(ctx context.Context, in RoleInput) ([]string, error) {
	return append([]string(nil), r...), nil
}
