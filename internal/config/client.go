package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bizmarket/marketplace/internal/guard"
)

// Identity backends the client can verify sessions against.
const (
	IdentityBackendHTTP   = "http"
	IdentityBackendKratos = "kratos"
)

// ClientConfig configures the client-side session core.
type ClientConfig struct {
	APIURL          string        // marketplace backend base URL
	IdentityBackend string        // http | kratos
	KratosURL       string        // Kratos public API, used by the kratos backend
	RequestTimeout  time.Duration // per request timeout of identity checks and API calls
	LoginPath       string        // where anonymous visitors are sent
	ForbiddenPath   string        // where authenticated visitors failing a role gate are sent
	GuardsFile      string        // optional YAML route table
}

// LoadClient reads MARKET_* variables.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		APIURL:          envStr("MARKET_API_URL", "http://localhost:8080"),
		IdentityBackend: strings.ToLower(envStr("MARKET_IDENTITY_BACKEND", IdentityBackendHTTP)),
		KratosURL:       envStr("KRATOS_URL", "http://localhost:4433"),
		RequestTimeout:  envDur("MARKET_REQUEST_TIMEOUT", 5*time.Second),
		LoginPath:       envStr("MARKET_LOGIN_PATH", "/login"),
		ForbiddenPath:   envStr("MARKET_FORBIDDEN_PATH", "/"),
		GuardsFile:      os.Getenv("MARKET_GUARDS_FILE"),
	}
	switch cfg.IdentityBackend {
	case IdentityBackendHTTP, IdentityBackendKratos:
	default:
		return ClientConfig{}, fmt.Errorf("invalid MARKET_IDENTITY_BACKEND %q", cfg.IdentityBackend)
	}
	return cfg, nil
}

// LoadGuardTable returns the route table from GuardsFile, or the built-in
// table when no file is configured.
func (c ClientConfig) LoadGuardTable() (*guard.Table, error) {
	if c.GuardsFile == "" {
		return guard.DefaultTable(c.LoginPath, c.ForbiddenPath), nil
	}
	data, err := os.ReadFile(c.GuardsFile)
	if err != nil {
		return nil, fmt.Errorf("read guard table: %w", err)
	}
	return guard.ParseTable(data)
}
