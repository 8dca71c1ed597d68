package router

import (
	"github.com/labstack/echo/v4"

	"github.com/bizmarket/marketplace/internal/guard"
	"github.com/bizmarket/marketplace/internal/handler"
	"github.com/bizmarket/marketplace/internal/middleware"
	"github.com/bizmarket/marketplace/internal/model"
)

// RegisterDashboards registers the role-restricted dashboards. They use the
// same guard.Policy values as the client route table so both sides agree.
func RegisterDashboards(e *echo.Echo, d *handler.DashboardHandler, jwtSecret string, onDeny middleware.DenyFunc) {
	auth := middleware.JWTAuth(jwtSecret)
	g := e.Group("/v1")

	g.GET("/seller/dashboard", d.Seller, auth, middleware.RequireRole(guard.Require(model.RoleSeller), onDeny))
	g.GET("/buyer/dashboard", d.Buyer, auth, middleware.RequireRole(guard.Require(model.RoleBuyer), onDeny))
	g.GET("/admin/overview", d.AdminOverview, auth, middleware.RequireRole(guard.Require(model.RoleAdmin), onDeny))
}
