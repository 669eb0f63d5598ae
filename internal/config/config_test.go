package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 30, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, "./logs/knowledge_graph", cfg.Storage.Dir)
	assert.False(t, cfg.Graph.Enabled)
	assert.False(t, cfg.Graph.MergeByNameAndType)
	assert.Equal(t, 3, cfg.Tasks.NumWorkers)
	assert.Equal(t, 100, cfg.Tasks.QueueSize)
	assert.Equal(t, 0.8, cfg.Dedup.SimilarityThreshold)
	assert.True(t, cfg.Decision.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("GRAG_TASK_WORKERS", "8")
	t.Setenv("GRAG_DEDUP_SIMILARITY_THRESHOLD", "0.9")
	t.Setenv("GRAG_GRAPH_ENABLED", "true")
	t.Setenv("GRAG_NEO4J_URI", "neo4j://graph.internal:7687")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Tasks.NumWorkers)
	assert.Equal(t, 0.9, cfg.Dedup.SimilarityThreshold)
	assert.True(t, cfg.Graph.Enabled)
	assert.Equal(t, "neo4j://graph.internal:7687", cfg.Graph.URI)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grag.yaml")
	body := []byte(`
llm:
  model: glm-4
  timeout_seconds: 60
tasks:
  num_workers: 5
  queue_size: 100
dedup:
  similarity_threshold: 0.85
storage:
  dir: /tmp/kg
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "glm-4", cfg.LLM.Model)
	assert.Equal(t, 60, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Tasks.NumWorkers)
	assert.Equal(t, 0.85, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, "/tmp/kg", cfg.Storage.Dir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := buildBaseConfig()
	cfg.Tasks.NumWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = buildBaseConfig()
	cfg.Dedup.SimilarityThreshold = 1.2
	assert.Error(t, cfg.Validate())

	cfg = buildBaseConfig()
	cfg.Graph.Enabled = true
	cfg.Graph.URI = ""
	assert.Error(t, cfg.Validate())
}
