package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "DEV", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "ledger.db", cfg.DBPath)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.CORSOrigins)
	assert.True(t, cfg.SeedDemo)
	assert.Zero(t, cfg.AssignInterval)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	// GIVEN: LEDGER_* variables in the environment
	// WHEN: Loading
	// THEN: They win over defaults, and demo seeding is off outside DEV

	t.Setenv("LEDGER_ENV", "prod")
	t.Setenv("LEDGER_PORT", "9090")
	t.Setenv("LEDGER_DB_PATH", ":memory:")
	t.Setenv("LEDGER_REDIS_ADDR", "localhost:6379")
	t.Setenv("LEDGER_CATALOG_CACHE_TTL", "30s")
	t.Setenv("LEDGER_CORS_ORIGINS", " https://school.example , ")
	t.Setenv("LEDGER_ASSIGN_INTERVAL", "15m")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "PROD", cfg.Env)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
	assert.Equal(t, []string{"https://school.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.SeedDemo)
	assert.Equal(t, 15*time.Minute, cfg.AssignInterval)
}

func TestLoad_Invalid(t *testing.T) {
	v := New()
	v.Set("port", 0)
	_, err := Load(v)
	assert.ErrorContains(t, err, "port")

	v = New()
	v.Set("env", "staging")
	_, err = Load(v)
	assert.ErrorContains(t, err, "unknown env")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte("LEDGER_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LEDGER_ENV", "TEST")
	t.Setenv("LEDGER_LOG_LEVEL", "")
	os.Unsetenv("LEDGER_LOG_LEVEL")

	require.NoError(t, LoadDotEnv(dir))
	t.Cleanup(func() { os.Unsetenv("LEDGER_LOG_LEVEL") })

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadDotEnv(t.TempDir()))
}
