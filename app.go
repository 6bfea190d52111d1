package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/config"
	"github.com/oneclouds/oneclouds/internal/metrics"
	"github.com/oneclouds/oneclouds/internal/provider"
	"github.com/oneclouds/oneclouds/internal/secrets"
	"github.com/oneclouds/oneclouds/internal/sync"

	// Register the provider gateway factories.
	_ "github.com/oneclouds/oneclouds/internal/gateway"
)

// app wires the catalog, secrets box, and sync engine together for the CLI
// commands. Commands that only read the catalog never touch the secrets box,
// so the passphrase is resolved lazily.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *catalog.Store

	box *secrets.Box
}

// openApp opens the catalog (running migrations) and builds the logger.
func openApp() (*app, error) {
	logger := buildLogger()

	store, err := catalog.Open(resolvedCfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	return &app{cfg: resolvedCfg, logger: logger, store: store}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing catalog", slog.String("error", err.Error()))
	}
}

// secretsBox returns the credential sealing box, reading the passphrase from
// the configured environment variable on first use.
func (a *app) secretsBox() (*secrets.Box, error) {
	if a.box != nil {
		return a.box, nil
	}

	passphrase := os.Getenv(a.cfg.Secrets.PassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("no passphrase in $%s", a.cfg.Secrets.PassphraseEnv)
	}

	box, err := secrets.NewBox(passphrase)
	if err != nil {
		return nil, err
	}

	a.box = box

	return box, nil
}

// orchestrator assembles the sync engine. collector may be nil.
func (a *app) orchestrator(collector *metrics.Collector) (*sync.Orchestrator, error) {
	box, err := a.secretsBox()
	if err != nil {
		return nil, err
	}

	saver := &sealedSaver{store: a.store, box: box}
	coord := provider.NewCoordinator(saver, a.logger)
	reconciler := sync.NewReconciler(a.store, coord, a.logger)
	builder := &gatewayBuilder{cfg: a.cfg, box: box, logger: a.logger}

	return sync.NewOrchestrator(a.store, builder, reconciler, a.logger, collector, a.cfg.Sync.AccountConcurrency), nil
}

// currentUserID resolves the --user flag to a catalog user id, creating the
// user row on first use.
func currentUserID(cmd *cobra.Command, a *app) (int64, error) {
	return a.store.EnsureUser(cmd.Context(), flagUser, flagUser)
}

// sealedSaver persists rotated credentials: seal with the box, then write
// blob and expiry to the catalog in one statement.
type sealedSaver struct {
	store *catalog.Store
	box   *secrets.Box
}

func (s *sealedSaver) SaveCredentials(ctx context.Context, accountID int64, creds *provider.Credentials) error {
	plain, err := creds.Encode()
	if err != nil {
		return err
	}

	sealed, err := s.box.Seal(plain)
	if err != nil {
		return err
	}

	var expiry *int64
	if !creds.Expiry.IsZero() {
		expiry = catalog.Int64Ptr(creds.Expiry.UnixNano())
	}

	return s.store.UpdateAccountCredentials(ctx, accountID, sealed, expiry)
}

// httpClientFrom builds the provider HTTP client from the network config:
// connect_timeout bounds dialing and the TLS handshake, data_timeout bounds
// the whole exchange.
func httpClientFrom(network config.NetworkConfig) *http.Client {
	connect := config.Duration(network.ConnectTimeout, 10*time.Second)

	return &http.Client{
		Timeout: config.Duration(network.DataTimeout, 60*time.Second),
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout: connect,
		},
	}
}

// gatewayBuilder unseals an account's credentials and instantiates its
// provider gateway from the registry.
type gatewayBuilder struct {
	cfg    *config.Config
	box    *secrets.Box
	logger *slog.Logger
}

func (b *gatewayBuilder) BuildGateway(_ context.Context, account *catalog.StorageAccount) (provider.Gateway, error) {
	plain, err := b.box.Open(account.Credentials)
	if err != nil {
		return nil, fmt.Errorf("unsealing credentials for account %d: %w", account.ID, err)
	}

	creds, err := provider.DecodeCredentials(plain)
	if err != nil {
		return nil, err
	}

	pc := b.cfg.Providers[account.Provider]

	return provider.New(account.Provider, provider.GatewayConfig{
		Credentials:  creds,
		Mode:         string(account.Mode),
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		HTTPClient:   httpClientFrom(b.cfg.Network),
		Limiter:      provider.NewRateLimiter(b.cfg.Network.RequestsPerMinute, time.Minute),
		Logger:       b.logger,
	})
}
