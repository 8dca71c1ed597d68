// Package cache keeps recently served identities in Redis so the session
// endpoint, which every client guard calls, does not hit MySQL each time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bizmarket/marketplace/internal/config"
	"github.com/bizmarket/marketplace/internal/model"
)

// Loader reads a user from the system of record.
type Loader func(ctx context.Context, id uint64) (model.User, error)

type entry struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        model.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
}

// IdentityCache is a read-through cache over Loader. A nil Redis client or a
// disabled config turns it into a passthrough.
type IdentityCache struct {
	rdb    *redis.Client
	cfg    config.IdentityCacheConfig
	load   Loader
	logger *slog.Logger
}

func NewIdentityCache(cfg config.IdentityCacheConfig, rdb *redis.Client, load Loader, logger *slog.Logger) *IdentityCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityCache{rdb: rdb, cfg: cfg, load: load, logger: logger}
}

func (c *IdentityCache) enabled() bool { return c.rdb != nil && c.cfg.Enabled }

func (c *IdentityCache) key(id uint64) string {
	return fmt.Sprintf("%s:%d", c.cfg.Prefix, id)
}

// Get returns the user, consulting Redis first. Redis failures are logged and
// fall through to the loader. Password hashes are never cached.
func (c *IdentityCache) Get(ctx context.Context, id uint64) (model.User, error) {
	if !c.enabled() {
		return c.load(ctx, id)
	}

	raw, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var e entry
		if jerr := json.Unmarshal(raw, &e); jerr == nil {
			return model.User{ID: e.ID, Email: e.Email, DisplayName: e.DisplayName, Role: e.Role, IsActive: e.IsActive}, nil
		}
		c.logger.Warn("identity cache entry unreadable", "user_id", id)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("identity cache read failed", "user_id", id, "error", err)
	}

	u, err := c.load(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	c.store(ctx, u)
	return u, nil
}

func (c *IdentityCache) store(ctx context.Context, u model.User) {
	b, err := json.Marshal(entry{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role, IsActive: u.IsActive})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(u.ID), b, c.cfg.TTL).Err(); err != nil {
		c.logger.Warn("identity cache write failed", "user_id", u.ID, "error", err)
	}
}

// Invalidate drops a cached identity.
func (c *IdentityCache) Invalidate(ctx context.Context, id uint64) {
	if !c.enabled() {
		return
	}
	if err := c.rdb.Del(ctx, c.key(id)).Err(); err != nil {
		c.logger.Warn("identity cache invalidate failed", "user_id", id, "error", err)
	}
}
