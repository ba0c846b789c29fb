package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 5, cfg.AccountNumberAttempts)
	assert.Equal(t, LockBackendLocal, cfg.LockBackend)
	assert.True(t, cfg.RunMigrations)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("OPERATION_TIMEOUT", "750ms")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 750*time.Millisecond, cfg.OperationTimeout)
	assert.Equal(t, LockBackendRedis, cfg.LockBackend)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=9090\nACCOUNT_NUMBER_ATTEMPTS=2\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("ACCOUNT_NUMBER_ATTEMPTS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 2, cfg.AccountNumberAttempts)
}

func TestLoadRejectsUnknownLockBackend(t *testing.T) {
	t.Setenv("LOCK_BACKEND", "zookeeper")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "LOCK_BACKEND")
}

func TestGetDBConnectionString(t *testing.T) {
	cfg := &Config{
		DBHost:     "localhost",
		DBPort:     "5433",
		DBUser:     "ledger",
		DBPassword: "secret",
		DBName:     "ledger_test",
	}
	assert.Equal(t,
		"host=localhost port=5433 user=ledger password=secret dbname=ledger_test sslmode=disable",
		cfg.GetDBConnectionString())
}
