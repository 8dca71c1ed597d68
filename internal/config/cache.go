package config

import (
	"time"
)

// IdentityCacheConfig defines the Redis-backed cache of identities served by
// the session endpoint. When Enabled is false or no Redis client is
// configured, every lookup goes to the database.
type IdentityCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadIdentityCacheConfig reads IDENTITY_CACHE_* variables.
func LoadIdentityCacheConfig() IdentityCacheConfig {
	return IdentityCacheConfig{
		Enabled: envBool("IDENTITY_CACHE_ENABLED", true),
		TTL:     envDur("IDENTITY_CACHE_TTL", 5*time.Minute),
		Prefix:  envStr("IDENTITY_CACHE_PREFIX", "identity"),
	}
}
