package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "cicd_failures", cfg.VectorStore.Chromem.Collection)
	assert.Equal(t, 1536, cfg.VectorStore.Chromem.VectorSize)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Provider.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.Provider.EmbeddingModel)
	assert.Equal(t, 0.25, cfg.Engine.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Engine.Neighbors)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9999
logging:
  level: debug
  format: console
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 7777
engine:
  similarity_threshold: 0.3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7777, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, 0.3, cfg.Engine.SimilarityThreshold)

	// Untouched sections keep defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3, cfg.Engine.Neighbors)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9999\n")

	t.Setenv("FAILBANK_SERVER__PORT", "8888")
	t.Setenv("FAILBANK_PROVIDER__API_KEY", "sk-test")
	t.Setenv("FAILBANK_VECTORSTORE__CHROMEM__PATH", "/tmp/failbank-store")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, "/tmp/failbank-store", cfg.VectorStore.Chromem.Path)
}

func TestLoad_RejectsWorldReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: 99999\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad store provider", "vectorstore:\n  provider: pinecone\n"},
		{"bad threshold", "engine:\n  similarity_threshold: 3.0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfigFile(t, "server: [not: valid"))
	assert.Error(t, err)
}
