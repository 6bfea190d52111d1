package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[logging]
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	// Unset sections keep their defaults.
	assert.Equal(t, defaultRequestsPerMinute, cfg.Network.RequestsPerMinute)
	assert.Equal(t, defaultDedupeMinSize, cfg.Dedupe.MinSize)
	assert.Equal(t, defaultPassphraseEnv, cfg.Secrets.PassphraseEnv)
}

func TestLoad_UnknownKeyIsFatal(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[logging]
log_levle = "debug"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "log_levle")
}

func TestLoad_ProviderSection(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[providers.google_drive]
client_id = "id123"
client_secret = "secret456"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Contains(t, cfg.Providers, "google_drive")
	assert.Equal(t, "id123", cfg.Providers["google_drive"].ClientID)
}

func TestLoad_ValidationErrors(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[logging]
log_level = "loud"

[network]
requests_per_minute = 100000

[providers.megaupload]
client_id = "x"
`)

	_, err := Load(path)
	require.Error(t, err)

	// All errors are reported at once.
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "requests_per_minute")
	assert.Contains(t, err.Error(), "megaupload")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, defaultSyncInterval, cfg.Sync.Interval)
}

func TestResolve_OverrideChain(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[database]
path = "/from/file.db"
`)

	cliDB := "/from/cli.db"

	cfg, err := Resolve(
		EnvOverrides{ConfigPath: path, DBPath: "/from/env.db"},
		CLIOverrides{DBPath: &cliDB},
	)
	require.NoError(t, err)

	// CLI wins over env wins over file.
	assert.Equal(t, "/from/cli.db", cfg.Database.Path)
}

func TestResolve_EnvOnly(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[database]
path = "/from/file.db"
`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: path, DBPath: "/from/env.db"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Database.Path)
}
