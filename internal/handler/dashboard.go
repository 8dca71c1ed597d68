package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bizmarket/marketplace/internal/middleware"
	"github.com/bizmarket/marketplace/internal/model"
	"github.com/bizmarket/marketplace/internal/repository"
)

// DashboardHandler serves the role-restricted landing data. Sections are
// static until the listing and order services exist.
type DashboardHandler struct {
	Identities IdentityReader
}

func NewDashboardHandler(ids IdentityReader) *DashboardHandler {
	return &DashboardHandler{Identities: ids}
}

type dashboardResp struct {
	Dashboard string         `json:"dashboard"`
	User      model.Identity `json:"user"`
	Sections  []string       `json:"sections"`
}

func (h *DashboardHandler) Seller(c echo.Context) error {
	return h.render(c, "seller", []string{"listings", "orders", "payouts"})
}

func (h *DashboardHandler) Buyer(c echo.Context) error {
	return h.render(c, "buyer", []string{"orders", "saved", "payments"})
}

func (h *DashboardHandler) AdminOverview(c echo.Context) error {
	return h.render(c, "admin", []string{"users", "disputes", "reports"})
}

func (h *DashboardHandler) render(c echo.Context, name string, sections []string) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Identities.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, dashboardResp{Dashboard: name, User: u.Identity(), Sections: sections})
}
