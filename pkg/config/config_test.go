package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2, cfg.Auth.DefaultCPU)
	assert.Equal(t, int64(5120), cfg.Auth.DefaultDiskMB)
	assert.Equal(t, int64(100000), cfg.Container.CPUPeriodUS)
	assert.Equal(t, "1g", cfg.Container.RAMPerCPU)
	assert.Equal(t, int64(64), cfg.Container.PidsLimit)
	assert.Equal(t, "aisu-net", cfg.Container.Network)
	assert.Equal(t, RateLimitMemory, cfg.RateLimit.Backend)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
listen_addr: ":9000"
auth:
  secret_key: "test-secret"
  token_ttl_minutes: 30
container:
  image: "aisu-user:v2"
  pids_limit: 128
rate_limit:
  window_seconds: 10
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "test-secret", cfg.Auth.SecretKey)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL())
	assert.Equal(t, "aisu-user:v2", cfg.Container.Image)
	assert.Equal(t, int64(128), cfg.Container.PidsLimit)
	// unset keys keep their defaults
	assert.Equal(t, "sysbox-runc", cfg.Container.Runtime)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window())
}

func TestLoadRequiresSecretKey(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "secret_key")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AISU_SECRET_KEY", "env-secret")
	t.Setenv("AISU_LISTEN_ADDR", ":7777")
	t.Setenv("AISU_CONTAINER_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.SecretKey)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.False(t, cfg.Container.Enabled)
}

func TestRedisBackendRequiresURL(t *testing.T) {
	t.Setenv("AISU_SECRET_KEY", "s")
	cfg := Default()
	cfg.Auth.SecretKey = "s"
	cfg.RateLimit.Backend = RateLimitRedis

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis_url")
}
