package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bizmarket/marketplace/internal/config"
	"github.com/bizmarket/marketplace/internal/metrics"
	"github.com/bizmarket/marketplace/internal/middleware"
	"github.com/bizmarket/marketplace/internal/model"
	"github.com/bizmarket/marketplace/internal/queue"
	"github.com/bizmarket/marketplace/internal/repository"
	"github.com/bizmarket/marketplace/internal/utils"
)

const dbTimeout = 5 * time.Second

// UserStore is the account persistence AuthHandler needs.
type UserStore interface {
	Create(ctx context.Context, email, displayName, password string, role model.Role, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore persists refresh tokens by hash.
type TokenStore interface {
	Issue(ctx context.Context, t model.RefreshToken) error
	// Rotate swaps the token behind oldHash for next and returns its owner.
	Rotate(ctx context.Context, oldHash string, next model.RefreshToken) (model.User, error)
	Revoke(ctx context.Context, tokenHash string) (uint64, error)
	RevokeAll(ctx context.Context, userID uint64) (int64, error)
}

// IdentityReader serves users by id, usually through the identity cache.
type IdentityReader interface {
	Get(ctx context.Context, id uint64) (model.User, error)
	Invalidate(ctx context.Context, id uint64)
}

// EventPublisher sends auth audit events.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg        config.Config
	Users      UserStore
	Tokens     TokenStore
	Identities IdentityReader
	Events     EventPublisher
	Logger     *slog.Logger
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, ids IdentityReader, ev EventPublisher, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Identities: ids, Events: ev, Logger: logger}
}

// ----- DTOs -----

type signupReq struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Role        string `json:"role" validate:"omitempty,oneof=buyer seller"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    model.Identity `json:"user"`
	Access  tokenPart      `json:"access"`
	Refresh tokenPart      `json:"refresh"`
}

// bindValid binds and validates req. When it reports false the 400
// response has already been written.
func bindValid(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": verr.Fields})
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return true, nil
}

// Signup creates a buyer or seller account and returns a token pair.
// Admin accounts cannot be self-registered.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	role := model.RoleBuyer
	if req.Role != "" {
		role, _ = model.ParseRole(req.Role)
	}
	email := repository.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, email, name, req.Password, role, h.Cfg.BcryptCost)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("signup", "error").Inc()
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		h.Logger.Error("create user failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	u := model.User{ID: uid, Email: email, DisplayName: name, Role: role, IsActive: true}
	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Logger.Error("issue tokens failed", "error", err, "user_id", uid)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	metrics.LoginsTotal.WithLabelValues("signup", "success").Inc()
	h.emit(queue.NewAuthEvent(queue.EventSignup, uid, email, role))
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.LoginsTotal.WithLabelValues("login", "invalid").Inc()
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		metrics.LoginsTotal.WithLabelValues("login", "error").Inc()
		h.Logger.Error("load user failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		metrics.LoginsTotal.WithLabelValues("login", "invalid").Inc()
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.IsActive || !u.Role.Valid() {
		metrics.LoginsTotal.WithLabelValues("login", "inactive").Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Logger.Error("issue tokens failed", "error", err, "user_id", u.ID)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	metrics.LoginsTotal.WithLabelValues("login", "success").Inc()
	h.emit(queue.NewAuthEvent(queue.EventLogin, u.ID, u.Email, u.Role))
	return c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked in the same step, so it works exactly once.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	u, err := h.Tokens.Rotate(ctx, hash, model.RefreshToken{TokenHash: utils.HashRefreshRaw(refresh.Raw), ExpiresAt: refresh.Exp})
	switch {
	case errors.Is(err, repository.ErrTokenInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	case errors.Is(err, repository.ErrAccountDisabled):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	case err != nil:
		h.Logger.Error("refresh rotation failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}

	resp, err := h.pair(u, refresh)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes one refresh token when given in the body, otherwise every
// token of the bearer's user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var (
		uid  uint64
		role model.Role
	)
	if raw, ok := middleware.BearerToken(c); ok {
		if claims, r, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw); err == nil {
			uid, _ = claims.UserID()
			role = r
		}
	}

	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	switch {
	case refreshToken != "":
		owner, err := h.Tokens.Revoke(ctx, utils.HashRefreshRaw(refreshToken))
		if errors.Is(err, repository.ErrTokenInvalid) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		uid = owner
	case uid != 0:
		n, err := h.Tokens.RevokeAll(ctx, uid)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		h.Logger.Debug("revoked refresh tokens", "user_id", uid, "count", n)
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
	}

	h.Identities.Invalidate(ctx, uid)
	h.emit(queue.NewAuthEvent(queue.EventLogout, uid, "", role))
	return c.NoContent(http.StatusNoContent)
}

// Session answers the client's authentication check. It always responds 200
// with {is_authenticated, user}; anything short of a valid token for an
// active user reads as unauthenticated. Storage failures are 500 so the
// client can tell them apart from a signed-out visitor.
func (h *AuthHandler) Session(c echo.Context) error {
	raw, ok := middleware.BearerToken(c)
	if !ok {
		return c.JSON(http.StatusOK, model.Unauthenticated())
	}
	claims, _, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw)
	if err != nil {
		return c.JSON(http.StatusOK, model.Unauthenticated())
	}
	uid, _ := claims.UserID()

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Identities.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusOK, model.Unauthenticated())
		}
		h.Logger.Error("session lookup failed", "error", err, "user_id", uid)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session lookup failed"})
	}
	if !u.IsActive || !u.Role.Valid() {
		return c.JSON(http.StatusOK, model.Unauthenticated())
	}
	return c.JSON(http.StatusOK, model.Authenticated(u.Identity()))
}

// Me returns the identity behind the access token (protected).
func (h *AuthHandler) Me(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Identities.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, u.Identity())
}

// Denied records a role denial from middleware.RequireRole.
func (h *AuthHandler) Denied(c echo.Context, role model.Role) {
	uid, _ := middleware.UserID(c)
	ev := queue.NewAuthEvent(queue.EventDenied, uid, "", role)
	ev.Path = c.Request().URL.Path
	ev.Reason = "forbidden"
	h.Logger.Info("role denied", "user_id", uid, "role", role.String(), "path", ev.Path)
	h.emit(ev)
}

// issue mints a token pair for u and records the refresh token.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	rec := model.RefreshToken{UserID: u.ID, TokenHash: utils.HashRefreshRaw(refresh.Raw), ExpiresAt: refresh.Exp}
	if err := h.Tokens.Issue(ctx, rec); err != nil {
		return authResp{}, err
	}
	return h.pair(u, refresh)
}

func (h *AuthHandler) pair(u model.User, refresh utils.RefreshToken) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    u.Identity(),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// emit publishes off the request path; failures are only logged.
func (h *AuthHandler) emit(ev queue.AuthEvent) {
	if h.Events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Events.Publish(ctx, ev); err != nil {
			h.Logger.Warn("publish auth event failed", "type", ev.Type, "error", err)
		}
	}()
}
