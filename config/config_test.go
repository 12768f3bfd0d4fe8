package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
ocelbridge:
  input:
    path: logs/warehouse.json
  flatten:
    lead_object_type: Order
  platform:
    base_url: https://academic.example.cloud
    timeout: 10s
    headers:
      Authorization: Bearer ${OCELBRIDGE_TEST_TOKEN}
  provision:
    concurrency: 4
  progress:
    mode: redis
    redis:
      ttl: 1h
  logging:
    level: debug
`

func TestLoadConfigExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("OCELBRIDGE_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "ocelbridge.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	ApplyDefaults(cfg)
	c := cfg.OcelBridge

	assert.Equal(t, "logs/warehouse.json", c.Input.Path)
	assert.Equal(t, "Order", c.Flatten.LeadObjectType)
	assert.Equal(t, "Bearer s3cret", c.Platform.Headers["Authorization"])
	assert.Equal(t, 10*time.Second, c.Platform.Timeout)
	assert.Equal(t, "develop", c.Platform.Environment)
	assert.Equal(t, 100, c.Platform.PageSize)
	assert.Equal(t, 4, c.Provision.Concurrency)
	assert.Equal(t, "#4608B3", c.Provision.Color)
	assert.Equal(t, time.Hour, c.Progress.Redis.TTL)
	assert.Equal(t, "ocelbridge:progress:{run_id}", c.Progress.Redis.Key)
	assert.True(t, c.Logging.Enabled)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.NoError(t, c.Validate())
}

func TestDefaultsOnEmptyConfig(t *testing.T) {
	cfg, err := Parse([]byte("ocelbridge: {}\n"))
	require.NoError(t, err)
	ApplyDefaults(cfg)

	c := cfg.OcelBridge
	assert.Equal(t, "-", c.Input.Path)
	assert.Equal(t, 8, c.Provision.Concurrency)
	assert.Equal(t, "console", c.Progress.Mode)
	assert.Equal(t, "info", c.Logging.Level)
	assert.ErrorContains(t, c.Validate(), "platform.base_url")
}

func TestValidateProgressMode(t *testing.T) {
	c := OcelBridgeConfig{Platform: PlatformConfig{BaseURL: "http://x"}, Progress: ProgressConfig{Mode: "kafka"}}
	assert.ErrorContains(t, c.Validate(), "unknown progress mode")
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("ocelbridge: [unclosed"))
	assert.Error(t, err)
}
