package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DB_PORT", "JWT_EXPIRY", "OTP_TTL", "SERVER_PORT", "NATS_URL", "MIGRATE_ON_START"} {
		unsetEnvWithCleanup(t, key)
	}
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Empty(t, cfg.NatsURL)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoad_DurationFormats(t *testing.T) {
	t.Chdir(t.TempDir())
	setEnvWithCleanup(t, "JWT_EXPIRY", "15")
	setEnvWithCleanup(t, "OTP_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Chdir(t.TempDir())
	setEnvWithCleanup(t, "DB_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}

func TestLoad_RejectsNonPositiveExpiry(t *testing.T) {
	t.Chdir(t.TempDir())
	setEnvWithCleanup(t, "JWT_EXPIRY", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsZeroRateLimit(t *testing.T) {
	t.Chdir(t.TempDir())
	setEnvWithCleanup(t, "LOGIN_RATE_LIMIT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOGIN_RATE_LIMIT")
}

func TestLoad_ReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("DB_NAME=from_file\nDB_USER=file_user\n"), 0o600))

	unsetEnvWithCleanup(t, "DB_NAME")
	setEnvWithCleanup(t, "DB_USER", "env_user")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from_file", cfg.DBName)
	assert.Equal(t, "env_user", cfg.DBUser)
	assert.Contains(t, cfg.DSN(), "dbname=from_file")
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
