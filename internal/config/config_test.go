package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LOCAL_SERVER_PORT", "")
	t.Setenv("FLOW_SERVER_PORT", "")
	t.Setenv("ENV", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.ServerPort)
	assert.Equal(t, DefaultBufferSize, cfg.BufferSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultHookCommand, cfg.HookCommand)
	assert.Equal(t, 5*time.Second, cfg.Forward.Timeout)
	assert.Empty(t, cfg.Forward.URL)
	assert.True(t, cfg.Forward.Redact)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(DataDir(), "events.db"), cfg.History.Path)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_port: 9100
buffer_size: 5
forward:
  url: https://collector.example.com/hooks
  timeout: 2s
  retry_count: 3
  redact: false
  headers:
    Authorization: Bearer abc
history:
  enabled: true
  max_events: 50
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.ServerPort)
	assert.Equal(t, 5, cfg.BufferSize)
	assert.Equal(t, "https://collector.example.com/hooks", cfg.Forward.URL)
	assert.Equal(t, 2*time.Second, cfg.Forward.Timeout)
	assert.Equal(t, 3, cfg.Forward.RetryCount)
	assert.False(t, cfg.Forward.Redact)
	assert.Equal(t, "Bearer abc", cfg.Forward.Headers["authorization"])
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 50, cfg.History.MaxEvents)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LOCAL_SERVER_PORT", "9200")
	t.Setenv("FLOW_BUFFER_SIZE", "7")
	t.Setenv("FLOW_FORWARD_URL", "http://127.0.0.1:8080/in")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.ServerPort)
	assert.Equal(t, 7, cfg.BufferSize)
	assert.Equal(t, "http://127.0.0.1:8080/in", cfg.Forward.URL)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("FLOW_LOG_LEVEL=debug\n"), 0600))
	t.Cleanup(func() { _ = os.Unsetenv("FLOW_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: -1\nbuffer_size: 0\nforward:\n  retry_count: -2\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.ServerPort)
	assert.Equal(t, DefaultBufferSize, cfg.BufferSize)
	assert.Zero(t, cfg.Forward.RetryCount)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.ServerPort)
}

func TestEnvFileName(t *testing.T) {
	t.Setenv("ENV", "")
	assert.Equal(t, ".env.local", EnvFileName())
	t.Setenv("ENV", ".env.staging")
	assert.Equal(t, ".env.staging", EnvFileName())
}
