package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/arbion")
	t.Setenv("SCHWAB_CLIENT_ID", "schwab-id")
	t.Setenv("SCHWAB_CLIENT_SECRET", "schwab-secret")
	t.Setenv("COINBASE_CLIENT_ID", "coinbase-id")
	t.Setenv("COINBASE_CLIENT_SECRET", "coinbase-secret")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "0000000000000000000000000000000000000000000000000000000000000000")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "5m0s", cfg.MaintenanceInterval.String())
	assert.Equal(t, "2m0s", cfg.StartupGracePeriod.String())
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_InvalidEncryptionKeyHex(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_ENCRYPTION_KEY", "not-hex")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be valid hex")
}

func TestLoad_ShortEncryptionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_ENCRYPTION_KEY", "abcd")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestLoad_DerivedKeyMaterial(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_ENCRYPTION_KEY", "")
	t.Setenv("CREDENTIAL_SECRET", "super-secret")
	t.Setenv("CREDENTIAL_SALT", "pepper")

	_, err := Load()
	require.NoError(t, err)
}

func TestLoad_SecretWithoutSalt(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_ENCRYPTION_KEY", "")
	t.Setenv("CREDENTIAL_SECRET", "super-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDENTIAL_SALT is required")
}

func TestLoad_NoKeyMaterial(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_ENCRYPTION_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no encryption key material configured")
}

func TestLoad_MaintenanceIntervalTooShort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAINTENANCE_INTERVAL", "10s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAINTENANCE_INTERVAL")
}
