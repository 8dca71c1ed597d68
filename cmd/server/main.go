package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/bizmarket/marketplace/internal/cache"
	"github.com/bizmarket/marketplace/internal/config"
	"github.com/bizmarket/marketplace/internal/database"
	"github.com/bizmarket/marketplace/internal/handler"
	"github.com/bizmarket/marketplace/internal/logger"
	"github.com/bizmarket/marketplace/internal/middleware"
	"github.com/bizmarket/marketplace/internal/queue"
	"github.com/bizmarket/marketplace/internal/repository"
	"github.com/bizmarket/marketplace/internal/router"
	"github.com/bizmarket/marketplace/internal/service"
)

func main() {
	config.LoadDotEnv()
	log := logger.Init()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable, using in-process rate limiting and no identity cache")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewRefreshTokenRepo(db)
	identities := cache.NewIdentityCache(config.LoadIdentityCacheConfig(), rdb, users.GetByID, log)
	events := service.NewPublisher(cfg.AMQPURL, cfg.EventsEnabled, log)

	if cfg.ConsumeEvents {
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.AuditLogDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("auth event consumer stopped", "error", err)
			}
		}()
	}

	auth := handler.NewAuthHandler(cfg, users, tokens, identities, events, log)
	dashboards := handler.NewDashboardHandler(identities)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				log.InfoContext(ctx, "request completed",
					"method", v.Method, "uri", v.URI, "status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				log.ErrorContext(ctx, "request failed",
					"method", v.Method, "uri", v.URI, "status", v.Status,
					"latency_ms", v.Latency.Milliseconds(), "error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	router.RegisterRoutes(e, db, rdb)
	router.RegisterAuth(e, auth, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterDashboards(e, dashboards, cfg.JWTSecret, auth.Denied)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
