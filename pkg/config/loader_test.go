package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsWhenFileMissing(t *testing.T) {
	cfg, v, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "test")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "test", cfg.AppEnv)
	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, "http://localhost:26657", cfg.Node.RPCURL)
	assert.Equal(t, "junod", cfg.Node.ServiceName)
	assert.Equal(t, 10*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "galicia_auth", cfg.Session.Key)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, "es", cfg.Bot.DefaultLanguage)
	assert.Equal(t, 3, cfg.RateLimit.Commands.Control.Limit)
}

func TestLoadFile_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	content := []byte(`
server:
  port: "9000"
monitor:
  interval: 3s
session:
  backend: file
  dir: /tmp/galicia
logger:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("NODE_SERVICE_NAME", "junod-testnet")

	cfg, _, err := LoadFile(path, "test")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, ":9000", cfg.Server.Addr())
	assert.Equal(t, 3*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "file", cfg.Session.Backend)
	assert.Equal(t, "/tmp/galicia", cfg.Session.Dir)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "junod-testnet", cfg.Node.ServiceName)
}

func TestLoadFile_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{name: "unknown session backend", yaml: "session:\n  backend: sqlite\n"},
		{name: "bot enabled without token", yaml: "bot:\n  enabled: true\n"},
		{name: "sentry enabled without dsn", yaml: "sentry:\n  enabled: true\n"},
		{name: "bad log level", yaml: "logger:\n  level: verbose\n"},
		{name: "non numeric port", yaml: "server:\n  port: http\n"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o600))

			_, _, err := LoadFile(path, "test")
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o600))

	_, _, err := LoadFile(path, "test")
	assert.Error(t, err)
}
