package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmarket/marketplace/internal/guard"
	"github.com/bizmarket/marketplace/internal/model"
)

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("AUTH_RATE_LIMIT_CAPACITY", "0")
	t.Setenv("AUTH_RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("AUTH_RATE_LIMIT_TTL", "1s")
	t.Setenv("AUTH_RATE_LIMIT_ENABLED", "off")

	cfg := LoadRateLimitConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)
	assert.Equal(t, "rl:auth", cfg.Prefix)
}

func TestLoadIdentityCacheConfig(t *testing.T) {
	t.Setenv("IDENTITY_CACHE_TTL", "90s")
	cfg := LoadIdentityCacheConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 90*time.Second, cfg.TTL)
}

func TestAMQPURL(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@mq:5672/")
	assert.Equal(t, "amqp://u:p@mq:5672/", AMQPURL())
}

func TestLoadClient(t *testing.T) {
	t.Setenv("MARKET_IDENTITY_BACKEND", "Kratos")
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, IdentityBackendKratos, cfg.IdentityBackend)
	assert.Equal(t, "/login", cfg.LoginPath)

	t.Setenv("MARKET_IDENTITY_BACKEND", "ldap")
	_, err = LoadClient()
	assert.Error(t, err)
}

func TestClientConfig_LoadGuardTable(t *testing.T) {
	cfg := ClientConfig{LoginPath: "/signin", ForbiddenPath: "/home"}
	tbl, err := cfg.LoadGuardTable()
	require.NoError(t, err)
	r, ok := tbl.Match("/seller")
	require.True(t, ok)
	assert.Equal(t, "/signin", r.Fallback)
	assert.Equal(t, "/home", r.ForbiddenFallback)

	path := filepath.Join(t.TempDir(), "guards.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fallback: /login\nroutes:\n  - prefix: /vault\n    required_role: admin\n"), 0o600))
	cfg.GuardsFile = path
	tbl, err = cfg.LoadGuardTable()
	require.NoError(t, err)
	r, ok = tbl.Match("/vault/keys")
	require.True(t, ok)
	assert.True(t, r.Policy.Allows(model.RoleAdmin))

	require.NoError(t, os.WriteFile(path, []byte("fallback: /login\nroutes:\n  - prefix: /vault\n    required_role: owner\n"), 0o600))
	_, err = cfg.LoadGuardTable()
	assert.True(t, errors.Is(err, guard.ErrMisconfiguredGuard))
}
