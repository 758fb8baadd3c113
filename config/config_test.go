package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing config file falls back to defaults")

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorDB.Type)
	assert.Equal(t, "pdf_chat_collection", cfg.VectorDB.Collection)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.Embed.Model)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
	assert.Equal(t, 200, cfg.Document.ChunkOverlap)
	assert.Equal(t, 3, cfg.Search.Limit)
	assert.InDelta(t, 0.7, float64(cfg.Search.MinScore), 0.001)
	assert.False(t, cfg.Queue.Enable)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
document:
  chunk_size: 500
search:
  limit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Document.ChunkSize)
	assert.Equal(t, 5, cfg.Search.Limit)
	// Untouched settings keep their defaults.
	assert.Equal(t, 200, cfg.Document.ChunkOverlap)
}

func TestValidateRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err, "startup must fail without an API key")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestAPIKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Embed.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestExpandEnvironmentReferences(t *testing.T) {
	t.Setenv("MY_LLM_KEY", "sk-from-ref")

	cfg := &Config{}
	cfg.LLM.APIKey = "${MY_LLM_KEY}"
	expandEnvironment(cfg)

	assert.Equal(t, "sk-from-ref", cfg.LLM.APIKey)
}

func TestDataDir(t *testing.T) {
	cfg := &Config{}
	cfg.Database.DSN = "data/pdfchat.db"
	assert.Equal(t, "data", cfg.DataDir())
}
