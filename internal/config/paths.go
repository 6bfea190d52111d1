package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName          = "oneclouds"
	configFileName   = "config.toml"
	databaseFileName = "catalog.db"
)

// xdgDir resolves an XDG base directory, preferring the environment
// override and falling back to the conventional path under $HOME.
func xdgDir(envVar string, fallback ...string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	parts := append([]string{home}, fallback...)

	return filepath.Join(append(parts, appName)...)
}

// darwinSupportDir is the macOS home for both config and data, per the
// Application Support convention.
func darwinSupportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, "Library", "Application Support", appName)
}

// DefaultConfigDir returns the platform-specific directory for config files.
func DefaultConfigDir() string {
	if runtime.GOOS == "darwin" {
		return darwinSupportDir()
	}

	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific directory for application
// data, where the catalog database lives.
func DefaultDataDir() string {
	if runtime.GOOS == "darwin" {
		return darwinSupportDir()
	}

	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultDatabasePath returns the full path to the default catalog database.
func DefaultDatabasePath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return databaseFileName
	}

	return filepath.Join(dir, databaseFileName)
}
