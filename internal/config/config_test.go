package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s

router:
  strategy: cost_optimized
  fallback_on_error: true

backends:
  anthropic:
    api_key: ${TEST_API_KEY}
    base_url: https://api.anthropic.com

cache:
  ttl: 5m
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_API_KEY", "my-secret-key")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "cost_optimized", cfg.Router.Strategy)
	assert.True(t, cfg.Router.FallbackOnError)
	assert.Equal(t, 3, cfg.Router.Threshold) // default applied

	anthropic, ok := cfg.Backends["anthropic"]
	require.True(t, ok)
	assert.Equal(t, "my-secret-key", anthropic.APIKey)
	assert.Equal(t, "https://api.anthropic.com", anthropic.BaseURL)

	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("GATEWAY_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "priority", cfg.Router.Strategy)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 60*time.Second, cfg.Router.Cooldown)
}
