package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health answers load balancer probes with a plain "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports whether MySQL and, when configured, Redis answer a ping.
func Ready(db *sql.DB, rdb *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := echo.Map{"mysql": "ok", "redis": "disabled"}
		code := http.StatusOK
		if db == nil || db.PingContext(ctx) != nil {
			status["mysql"] = "down"
			code = http.StatusServiceUnavailable
		}
		if rdb != nil {
			status["redis"] = "ok"
			if rdb.Ping(ctx).Err() != nil {
				status["redis"] = "down"
			}
		}
		return c.JSON(code, status)
	}
}
