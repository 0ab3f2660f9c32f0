package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFileOverridesOnlyGivenFields(t *testing.T) {
	path := writeTempConfig(t, `
fallbackThreshold: 7
alpha: 0.6
weights:
  wait: 0.5
  load: 0.3
  priority: 0.2
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.FallbackThreshold)
	assert.Equal(t, 0.6, cfg.Alpha)
	assert.Equal(t, Weights{Wait: 0.5, Load: 0.3, Priority: 0.2}, cfg.Weights)

	// untouched fields keep their defaults
	assert.Equal(t, 30*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, "scheduler:tasks", cfg.StreamName)
}

func TestLoadFromFileDurationsAreMilliseconds(t *testing.T) {
	path := writeTempConfig(t, `
heartbeatTimeoutMs: 45000
maxWaitMs: 90000
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 90*time.Second, cfg.MaxWait)
}

func TestLoadFromFileStreamTopology(t *testing.T) {
	path := writeTempConfig(t, `
streamName: custom:tasks
consumerGroup: custom-group
heartbeatStreamName: custom:heartbeats
completionStreamName: custom:completions
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "custom:tasks", cfg.StreamName)
	assert.Equal(t, "custom-group", cfg.ConsumerGroup)
	assert.Equal(t, "custom:heartbeats", cfg.HeartbeatStreamName)
	assert.Equal(t, "custom:completions", cfg.CompletionStreamName)
}

func TestLoadFromFileMissingFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFileMalformedYAMLErrors(t *testing.T) {
	path := writeTempConfig(t, "fallbackThreshold: [this is not valid\n")
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}
