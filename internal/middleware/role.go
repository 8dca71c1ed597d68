package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bizmarket/marketplace/internal/guard"
	"github.com/bizmarket/marketplace/internal/metrics"
	"github.com/bizmarket/marketplace/internal/model"
)

// DenyFunc is told about requests RequireRole rejected with 403.
type DenyFunc func(c echo.Context, role model.Role)

// RequireRole enforces a guard.Policy on the role stored by JWTAuth. A
// request without an identity gets 401, a role outside the policy 403.
// The same Policy type drives the client-side route guards.
func RequireRole(p guard.Policy, onDeny DenyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := UserID(c); !ok {
				metrics.GuardDecisionsTotal.WithLabelValues("server", "unauthenticated").Inc()
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			role := Role(c)
			if !p.Allows(role) {
				metrics.GuardDecisionsTotal.WithLabelValues("server", "forbidden").Inc()
				if onDeny != nil {
					onDeny(c, role)
				}
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			metrics.GuardDecisionsTotal.WithLabelValues("server", "granted").Inc()
			return next(c)
		}
	}
}
