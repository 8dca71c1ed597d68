package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bizmarket/marketplace/internal/model"
)

// Context keys set by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// UserID returns the authenticated user's id, if JWTAuth ran.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ContextUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated user's role, or RoleNone.
func Role(c echo.Context) model.Role {
	if r, ok := c.Get(ContextRole).(model.Role); ok {
		return r
	}
	return model.RoleNone
}

func currentUserID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
