package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minConcurrency       = 1
	maxConcurrency       = 32
	minRequestsPerMinute = 1
	maxRequestsPerMinute = 600
	minSyncInterval      = time.Minute
	minConnectTimeout    = 1 * time.Second
	minDataTimeout       = 5 * time.Second
	minShutdownTimeout   = 5 * time.Second
)

// Known provider ids accepted in the [providers] table.
var knownProviders = map[string]bool{
	"google_drive": true,
	"dropbox":      true,
	"onedrive":     true,
}

// Validate checks all configuration values and returns all errors found.
// Every error is accumulated rather than stopping at the first, so a user
// fixes the whole file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateDedupe(&cfg.Dedupe)...)
	errs = append(errs, validateProviders(cfg.Providers)...)

	return errors.Join(errs...)
}

func validateLogging(c *LoggingConfig) []error {
	var errs []error

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.log_level: unknown level %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.log_format: unknown format %q", c.LogFormat))
	}

	return errs
}

func validateNetwork(c *NetworkConfig) []error {
	var errs []error

	if err := validateDuration("network.connect_timeout", c.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("network.data_timeout", c.DataTimeout, minDataTimeout); err != nil {
		errs = append(errs, err)
	}

	if c.RequestsPerMinute < minRequestsPerMinute || c.RequestsPerMinute > maxRequestsPerMinute {
		errs = append(errs, fmt.Errorf("network.requests_per_minute: %d out of range [%d, %d]",
			c.RequestsPerMinute, minRequestsPerMinute, maxRequestsPerMinute))
	}

	return errs
}

func validateSync(c *SyncConfig) []error {
	var errs []error

	if c.AccountConcurrency < minConcurrency || c.AccountConcurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("sync.account_concurrency: %d out of range [%d, %d]",
			c.AccountConcurrency, minConcurrency, maxConcurrency))
	}

	if err := validateDuration("sync.interval", c.Interval, minSyncInterval); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("sync.shutdown_timeout", c.ShutdownTimeout, minShutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateDedupe(c *DedupeConfig) []error {
	if _, err := ParseSize(c.MinSize); err != nil {
		return []error{fmt.Errorf("dedupe.min_size: %w", err)}
	}

	return nil
}

func validateProviders(providers map[string]ProviderConfig) []error {
	var errs []error

	for id, p := range providers {
		if !knownProviders[id] {
			errs = append(errs, fmt.Errorf("providers.%s: unknown provider", id))
			continue
		}

		if p.ClientID == "" {
			errs = append(errs, fmt.Errorf("providers.%s: client_id is required", id))
		}
	}

	return errs
}

// validateDuration parses a duration string and enforces a floor. "0" is
// always allowed and means disabled.
func validateDuration(key, value string, minimum time.Duration) error {
	if value == "" || value == "0" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, value)
	}

	if d < minimum {
		return fmt.Errorf("%s: %s below minimum %s", key, d, minimum)
	}

	return nil
}

// Duration parses a config duration string, returning fallback for empty or
// "0" values.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" || value == "0" {
		return fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return d
}
