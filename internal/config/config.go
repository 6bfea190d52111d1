// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for oneclouds. It supports a three-layer
// override chain (defaults -> config file -> environment -> CLI flags) and
// treats unknown keys in the config file as fatal.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Database  DatabaseConfig            `toml:"database"`
	Logging   LoggingConfig             `toml:"logging"`
	Network   NetworkConfig             `toml:"network"`
	Sync      SyncConfig                `toml:"sync"`
	Dedupe    DedupeConfig              `toml:"dedupe"`
	Secrets   SecretsConfig             `toml:"secrets"`
	Daemon    DaemonConfig              `toml:"daemon"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

// DatabaseConfig locates the catalog database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "auto", "text", or "json"
}

// NetworkConfig controls outbound HTTP behavior toward providers.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`

	// RequestsPerMinute is the per-account rate limit applied to every
	// provider API call.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// SyncConfig controls the orchestrator.
type SyncConfig struct {
	// AccountConcurrency bounds how many accounts reconcile in parallel.
	AccountConcurrency int `toml:"account_concurrency"`

	// Interval is the daemon's pause between full sweeps.
	Interval string `toml:"interval"`

	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// DedupeConfig controls duplicate detection.
type DedupeConfig struct {
	// MinSize excludes files below this size from duplicate detection,
	// e.g. "1KB". "0" disables the floor.
	MinSize string `toml:"min_size"`
}

// SecretsConfig controls credential sealing. The passphrase itself is never
// stored in the config file; only the environment variable holding it is
// named here.
type SecretsConfig struct {
	PassphraseEnv string `toml:"passphrase_env"`
}

// DaemonConfig controls the long-running mode.
type DaemonConfig struct {
	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables the listener.
	MetricsAddr string `toml:"metrics_addr"`
}

// ProviderConfig carries the OAuth application credentials for one provider,
// keyed by registry id ("google_drive", "dropbox", "onedrive").
type ProviderConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	DBPath     *string // --db flag
	LogLevel   *string // --log-level flag
}
