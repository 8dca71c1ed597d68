package model

import "time"

// Session is the client's snapshot of who is logged in.
type Session struct {
	User            *Identity
	IsAuthenticated bool
	IsLoading       bool
}

// Role returns the subject role, or RoleNone for an anonymous session.
func (s Session) Role() Role {
	if s.User == nil {
		return RoleNone
	}
	return s.User.Role
}

// RedirectIntent is a navigation target captured when an anonymous user hits
// a gated action, resumed after authentication.
type RedirectIntent struct {
	ID          string
	TargetURL   string
	ResumeState any
	CreatedAt   time.Time
}
