package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/oneclouds/oneclouds/internal/provider"
)

// refreshOAuth exchanges the current refresh credential for a new token pair
// against the given OAuth2 endpoint. Providers that do not rotate the refresh
// token on exchange keep the existing one. Any failure is terminal: the
// coordinator only ever asks for one refresh per outer operation.
func refreshOAuth(
	ctx context.Context,
	cfg provider.GatewayConfig,
	endpoint oauth2.Endpoint,
	holder *credentialHolder,
	name string,
) (*provider.Credentials, error) {
	current := holder.get()
	if !current.CanRefresh() {
		return nil, fmt.Errorf("%s: no refresh token: %w", name, provider.ErrAuthTerminal)
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
	}

	src := conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: current.RefreshToken,
		// Force the source to refresh instead of reusing a token it
		// believes is still valid.
		Expiry: time.Now().Add(-time.Minute),
	})

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: token refresh rejected: %w", name, errors.Join(provider.ErrAuthTerminal, err))
	}

	rotated := provider.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}

	if rotated.RefreshToken == "" {
		rotated.RefreshToken = current.RefreshToken
	}

	holder.set(rotated)

	return &rotated, nil
}

// parseTimestamp parses an RFC3339 timestamp from a provider API, returning
// nil for empty or unparseable values rather than failing the record.
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}

	return &t
}
