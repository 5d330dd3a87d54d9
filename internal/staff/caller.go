// Package staff carries the authenticated desk user through a request.
package staff

import (
	"context"
	"strings"
)

// Role decides which desk actions a caller may take.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleSupervisor Role = "supervisor"
)

// ParseRole maps a token claim to a role. Anything unknown is plain staff.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleSupervisor)) {
		return RoleSupervisor
	}
	return RoleStaff
}

// Caller identifies who is acting on an appointment.
type Caller struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsSupervisor reports whether c holds the supervisor role.
func (c Caller) IsSupervisor() bool {
	return c.Role == RoleSupervisor
}

type contextKey struct{}

// WithCaller stores c on ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the caller stored by the auth middleware.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok && c.ID != ""
}
