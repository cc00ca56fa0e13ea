package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: data/test.db
trakt:
  client_id: abc123
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.trakt.tv", cfg.Trakt.BaseURL)
	assert.Equal(t, "https://api.trakt.tv/oauth/token", cfg.Trakt.TokenURL)
	assert.Equal(t, "https://api.themoviedb.org/3", cfg.Tmdb.BaseURL)
	assert.Equal(t, 35, cfg.Tmdb.RateLimit)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Sync.InitialDelay)
	assert.Equal(t, time.Minute, cfg.Sync.MaxDelay)
	assert.Equal(t, 2.0, cfg.Sync.BackoffFactor)
	assert.Equal(t, 1, cfg.Sync.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.Sync.ActivityInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Sync.ImageRefreshMaxAge)
	assert.Equal(t, 10.0, cfg.API.RateLimit.RPS)
	assert.Equal(t, "exports", cfg.Exports.Path)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_TRAKT_CLIENT_ID", "from-env")
	path := writeConfig(t, `
database:
  path: data/test.db
trakt:
  client_id: ${TEST_TRAKT_CLIENT_ID}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Trakt.ClientID)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: data/test.db
trakt:
  client_id: abc123
sync:
  max_retries: 5
  initial_delay: 500ms
  concurrency: 4
api:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.InitialDelay)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.Equal(t, 8080, cfg.API.Port, "enabled API gets a default port")
}

func TestLoadValidation(t *testing.T) {
	t.Run("MissingDatabasePath", func(t *testing.T) {
		path := writeConfig(t, `
trakt:
  client_id: abc123
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database path")
	})

	t.Run("MissingClientID", func(t *testing.T) {
		path := writeConfig(t, `
database:
  path: data/test.db
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "client id")
	})

	t.Run("NegativeBackoff", func(t *testing.T) {
		path := writeConfig(t, `
database:
  path: data/test.db
trakt:
  client_id: abc123
sync:
  backoff_factor: -1
`)
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
