package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Known provider identifiers as stored in storage_accounts.provider.
const (
	GoogleDrive = "google_drive"
	Dropbox     = "dropbox"
	OneDrive    = "onedrive"
)

// GatewayConfig carries everything a factory needs to build one gateway
// instance bound to a single storage account.
type GatewayConfig struct {
	Credentials  Credentials
	Mode         string // catalog.AccessMode value
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Limiter      *RateLimiter
	Logger       *slog.Logger
}

// Factory builds a Gateway for one storage account.
type Factory func(cfg GatewayConfig) Gateway

// registry is the closed set of supported providers. Provider selection is a
// static lookup, populated at init by the gateway package. No runtime
// registration from outside the module.
var registry = map[string]Factory{}

// Register installs a factory under a provider id. Called from gateway
// package init functions; duplicate registration is a programmer error.
func Register(id string, f Factory) {
	if _, dup := registry[id]; dup {
		panic(fmt.Sprintf("provider: duplicate registration for %q", id))
	}

	registry[id] = f
}

// New builds a gateway for the given provider id.
func New(id string, cfg GatewayConfig) (Gateway, error) {
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("provider: unsupported provider %q", id)
	}

	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(DefaultRequestsPerMinute, time.Minute)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return f(cfg), nil
}

// Known reports whether id names a supported provider.
func Known(id string) bool {
	_, ok := registry[id]
	return ok
}
