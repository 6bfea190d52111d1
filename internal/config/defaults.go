package config

// Default values for configuration options, the first layer of the override
// chain. Chosen so the tool works with no config file at all once a provider
// client id is supplied.
const (
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultConnectTimeout     = "10s"
	defaultDataTimeout        = "60s"
	defaultRequestsPerMinute  = 60
	defaultAccountConcurrency = 4
	defaultSyncInterval       = "15m"
	defaultShutdownTimeout    = "30s"
	defaultDedupeMinSize      = "1KB"
	defaultPassphraseEnv      = "ONECLOUDS_PASSPHRASE"
	defaultMetricsAddr        = ""
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields retain defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout:    defaultConnectTimeout,
			DataTimeout:       defaultDataTimeout,
			RequestsPerMinute: defaultRequestsPerMinute,
		},
		Sync: SyncConfig{
			AccountConcurrency: defaultAccountConcurrency,
			Interval:           defaultSyncInterval,
			ShutdownTimeout:    defaultShutdownTimeout,
		},
		Dedupe: DedupeConfig{
			MinSize: defaultDedupeMinSize,
		},
		Secrets: SecretsConfig{
			PassphraseEnv: defaultPassphraseEnv,
		},
		Daemon: DaemonConfig{
			MetricsAddr: defaultMetricsAddr,
		},
		Providers: make(map[string]ProviderConfig),
	}
}
