package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "batchd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
adapter:
  kind: sqlbulk
  sqlbulk:
    host: db.internal
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlbulk", cfg.Adapter.Kind)
	assert.Equal(t, "db.internal", cfg.Adapter.SQLBulk.Host)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 100, cfg.Batcher.MaxBatchSize)
}

func TestValidate_RejectsUnknownAdapterKind(t *testing.T) {
	cfg := Config{Adapter: AdapterConfig{Kind: "not-a-real-adapter"}}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingAdapterKind(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{Adapter: AdapterConfig{Kind: "webhook"}}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestReplaceReloadable_LeavesBatcherUntouched(t *testing.T) {
	cfg := Config{Batcher: BatcherConfig{MaxBatchSize: 50, Concurrency: 2}}
	next := Config{
		Batcher: BatcherConfig{MaxBatchSize: 999, Concurrency: 999},
		Server:  ServerConfig{Port: 1234},
	}

	cfg.ReplaceReloadable(&next)

	assert.Equal(t, 50, cfg.Batcher.MaxBatchSize)
	assert.Equal(t, 2, cfg.Batcher.Concurrency)
	assert.Equal(t, 1234, cfg.Server.Port)
}
