package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.json"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_JSONWithDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"REDIS_HOST": "redis.internal",
		"REDIS_PORT": 6380,
		"REDIS_PASSWORD": "pw",
		"ADMIN_API_KEY": "admin-secret"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, "pw", cfg.Redis.Password)
	assert.Equal(t, "admin-secret", cfg.AdminAPIKey)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.Redis.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Redis.RetryBackoff)
	assert.Equal(t, 60*time.Second, cfg.Rate.Window)
	assert.Equal(t, 1000, cfg.Rate.Global)
	assert.Equal(t, 100, cfg.Rate.Trusted)
	assert.Equal(t, 5, cfg.Rate.General)
	assert.Equal(t, "memory", cfg.Rate.Store)
	assert.Empty(t, cfg.Rate.TrustedCIDRs)
	assert.Equal(t, "X-API-Key", cfg.APIKeys.Header)
	assert.Equal(t, "X-Admin-Key", cfg.APIKeys.AdminHeader)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "REDIS_HOST: from-file\nREDIS_PORT: 6379\nADMIN_API_KEY: a\n")

	t.Setenv("GATEWAY_REDIS_HOST", "from-env")
	t.Setenv("GATEWAY_RATE_DEFAULT_LIMIT", "7")
	t.Setenv("GATEWAY_RATE_TRUSTED_CIDRS", "10.0.0.0/8, 192.168.0.0/16")
	t.Setenv("GATEWAY_CONCURRENCY_TIMEOUT", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Redis.Host)
	assert.Equal(t, 7, cfg.Rate.General)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Rate.TrustedCIDRs)
	assert.Equal(t, 250*time.Millisecond, cfg.Concurrency.Timeout)
}

func TestLoad_Validation(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"REDIS_PORT": 0,
		"RATE_STORE": "memcached",
		"APIKEY_DB_DRIVER": "mysql"
	}`)

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "REDIS_PORT")
	assert.Contains(t, msg, "ADMIN_API_KEY is required")
	assert.Contains(t, msg, "RATE_STORE")
	assert.Contains(t, msg, "APIKEY_DB_DRIVER")
}
