// Package guard decides whether a subject may reach a protected route.
package guard

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bizmarket/marketplace/internal/model"
)

// ErrMisconfiguredGuard reports a role requirement that can never be
// evaluated correctly. It is a construction-time error.
var ErrMisconfiguredGuard = errors.New("misconfigured guard")

// Policy is a role-gating rule. A set required role decides alone; otherwise
// an empty allowed set accepts every role.
type Policy struct {
	required model.Role
	allowed  []model.Role
}

// NewPolicy builds a policy. Pass model.RoleNone as required to gate on the
// allowed set instead. When required is set, allowed is ignored.
func NewPolicy(required model.Role, allowed ...model.Role) (Policy, error) {
	if required != model.RoleNone && !required.Valid() {
		return Policy{}, fmt.Errorf("%w: required role %s is not a known role", ErrMisconfiguredGuard, required)
	}
	if required != model.RoleNone {
		return Policy{required: required}, nil
	}
	set := make([]model.Role, 0, len(allowed))
	for _, r := range allowed {
		if !r.Valid() {
			return Policy{}, fmt.Errorf("%w: allowed role %s is not a known role", ErrMisconfiguredGuard, r)
		}
		if !slices.Contains(set, r) {
			set = append(set, r)
		}
	}
	return Policy{allowed: set}, nil
}

// MustPolicy is like NewPolicy but panics on misconfiguration.
func MustPolicy(required model.Role, allowed ...model.Role) Policy {
	p, err := NewPolicy(required, allowed...)
	if err != nil {
		panic(err)
	}
	return p
}

// AnyRole accepts every authenticated subject.
func AnyRole() Policy { return Policy{} }

// Require accepts exactly one role.
func Require(r model.Role) Policy { return MustPolicy(r) }

// Allow accepts any of the given roles.
func Allow(roles ...model.Role) Policy { return MustPolicy(model.RoleNone, roles...) }

// Allows reports whether a subject holding role passes the policy. A subject
// without a valid role never passes.
func (p Policy) Allows(role model.Role) bool {
	if !role.Valid() {
		return false
	}
	if p.required != model.RoleNone {
		return role == p.required
	}
	return len(p.allowed) == 0 || slices.Contains(p.allowed, role)
}

func (p Policy) String() string {
	if p.required != model.RoleNone {
		return "require " + p.required.String()
	}
	if len(p.allowed) == 0 {
		return "any role"
	}
	s := "allow"
	for _, r := range p.allowed {
		s += " " + r.String()
	}
	return s
}
