package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "ONECLOUDS_CONFIG"
	EnvDB     = "ONECLOUDS_DB"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // ONECLOUDS_CONFIG: override config file path
	DBPath     string // ONECLOUDS_DB: override catalog database path
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DBPath:     os.Getenv(EnvDB),
	}
}
