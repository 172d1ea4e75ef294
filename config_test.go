package restmodel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, 25, config.Database.MaxConnections)
	assert.Equal(t, "local", config.Generator.Mode)
	assert.Equal(t, "alphabetical", config.Mock.AttributeOrder)
	assert.Equal(t, 10*time.Minute, config.Cache.TTL)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{
			name:      "zero max connections",
			mutate:    func(c *Config) { c.Database.MaxConnections = 0 },
			wantField: "database.maxConnections",
		},
		{
			name:      "idle above max",
			mutate:    func(c *Config) { c.Database.MaxIdleConns = 100 },
			wantField: "database.maxIdleConns",
		},
		{
			name:      "iam without region",
			mutate:    func(c *Config) { c.Database.UseIAM = true },
			wantField: "database.awsRegion",
		},
		{
			name: "cache without address",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.Addr = ""
			},
			wantField: "cache.addr",
		},
		{
			name:      "remote generator without endpoint",
			mutate:    func(c *Config) { c.Generator.Mode = "remote" },
			wantField: "generator.endpoint",
		},
		{
			name:      "unknown generator mode",
			mutate:    func(c *Config) { c.Generator.Mode = "faker" },
			wantField: "generator.mode",
		},
		{
			name:      "unknown attribute order",
			mutate:    func(c *Config) { c.Mock.AttributeOrder = "random" },
			wantField: "mock.attributeOrder",
		},
		{
			name:      "unknown log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantField: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestLoadConfigFromYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restmodel.yaml")
	content := `
database:
  host: db.internal
  port: 6543
generator:
  mode: remote
  endpoint: http://generator:9000/generate
  timeout: 2s
cache:
  enabled: true
  ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Chdir(dir)
	t.Setenv("RESTMODEL_DB_HOST", "override.internal")
	t.Setenv("RESTMODEL_LOG_LEVEL", "debug")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "override.internal", config.Database.Host)
	assert.Equal(t, 6543, config.Database.Port)
	assert.Equal(t, "remote", config.Generator.Mode)
	assert.Equal(t, 2*time.Second, config.Generator.Timeout)
	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, time.Minute, config.Cache.TTL)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 25, config.Database.MaxConnections)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator:\n  mode: nope\n"), 0o600))
	t.Chdir(dir)

	_, err := LoadConfig(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "generator.mode", cfgErr.Field)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
