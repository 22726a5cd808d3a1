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
	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.DevMode)
	assert.Equal(t, "8080", cfg.HostPort)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 10*time.Second, cfg.StorePingInterval)
	assert.Equal(t, "PixelCanvas", cfg.DynamoDBTable)
	assert.Equal(t, "ClearWalletPixelsQueue", cfg.ModerationQueue)
	assert.Equal(t, 18, cfg.TokenDecimals)
	assert.Equal(t, "client", cfg.QuotaEnforcement)
	assert.Empty(t, cfg.Origins())

	secret, err := cfg.JWTSecret()
	require.NoError(t, err)
	assert.Nil(t, secret)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("HOST_PORT", "9090")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQL_DSN", "file:canvas.db")
	t.Setenv("QUOTA_ENFORCEMENT", "server")
	t.Setenv("TOKEN_DECIMALS", "6")
	t.Setenv("ADMIN_JWT_SECRET", "c2VjcmV0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DevMode)
	assert.Equal(t, "9090", cfg.HostPort)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "server", cfg.QuotaEnforcement)
	assert.Equal(t, 6, cfg.TokenDecimals)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())

	secret, err := cfg.JWTSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), secret)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DYNAMODB_TABLE=FromFile\n"), 0o600))
	// godotenv never overrides variables that are already set
	t.Setenv("DYNAMODB_TABLE", "")
	os.Unsetenv("DYNAMODB_TABLE")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "FromFile", cfg.DynamoDBTable)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	bad := base
	bad.StoreBackend = "mongo"
	assert.Error(t, bad.Validate())

	bad = base
	bad.StoreBackend = BackendPostgres
	assert.Error(t, bad.Validate())

	bad = base
	bad.QuotaEnforcement = "honor-system"
	assert.Error(t, bad.Validate())

	bad = base
	bad.AdminJWTSecret = "not base64!"
	assert.Error(t, bad.Validate())
}
