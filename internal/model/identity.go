package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a role string does not name a marketplace role.
var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of marketplace roles. The zero value RoleNone means
// "no role" and is never assigned to a user.
type Role uint8

const (
	RoleNone Role = iota
	RoleBuyer
	RoleSeller
	RoleAdmin
)

// Roles lists every assignable role.
var Roles = []Role{RoleBuyer, RoleSeller, RoleAdmin}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	case RoleNone:
		return false
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleAdmin:
		return "admin"
	case RoleNone:
		return ""
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole maps the wire name of a role onto Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buyer":
		return RoleBuyer, nil
	case "seller":
		return RoleSeller, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleNone, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	role, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Identity is the authenticated subject as seen by the client.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// AuthResult is the normalized answer of an authentication check.
// IsAuthenticated is never true without a User.
type AuthResult struct {
	IsAuthenticated bool      `json:"is_authenticated"`
	User            *Identity `json:"user,omitempty"`
}

// Unauthenticated is the fail-closed result.
func Unauthenticated() AuthResult { return AuthResult{} }

// Authenticated builds a positive result for u.
func Authenticated(u Identity) AuthResult {
	return AuthResult{IsAuthenticated: true, User: &u}
}
