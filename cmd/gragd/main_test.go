package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summergraph/grag/internal/config"
	"github.com/summergraph/grag/internal/engine"
	"github.com/summergraph/grag/internal/llm"
)

type fakeOracle struct{}

func (fakeOracle) Complete(context.Context, []llm.Message) (string, error) {
	return `[]`, nil
}

func (fakeOracle) CompleteStructured(context.Context, []llm.Message, llm.Schema) (string, error) {
	return `{"quintuples":[]}`, nil
}

func (fakeOracle) GetModel() string { return "fake" }

func testManager(t *testing.T) *engine.Manager {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{Dir: t.TempDir()},
		Tasks: config.TasksConfig{
			NumWorkers:             1,
			QueueSize:              10,
			ShutdownTimeoutSeconds: 5,
		},
		Dedup:    config.DedupConfig{SimilarityThreshold: 0.8},
		Decision: config.DecisionConfig{Enabled: false},
	}
	mgr, err := engine.NewManagerWithOracle(cfg, fakeOracle{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return mgr
}

func TestHandle_Stats(t *testing.T) {
	mgr := testManager(t)

	resp := handle(context.Background(), mgr, request{Op: "stats"})
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestHandle_UnknownOp(t *testing.T) {
	mgr := testManager(t)

	resp := handle(context.Background(), mgr, request{Op: "bogus"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown op")
}

func TestHandle_UnknownTask(t *testing.T) {
	mgr := testManager(t)

	resp := handle(context.Background(), mgr, request{Op: "task", TaskID: "missing"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown task")
}

func TestServe_OneResponsePerLine(t *testing.T) {
	mgr := testManager(t)

	in := strings.NewReader(
		`{"op":"stats"}` + "\n" +
			`not json` + "\n" +
			`{"op":"cleanup"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, serve(context.Background(), mgr, in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first, second, third response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))

	assert.True(t, first.OK)
	assert.Contains(t, second.Error, "bad request")
	assert.True(t, third.OK)
}

func TestServe_SkipsBlankLines(t *testing.T) {
	mgr := testManager(t)

	in := strings.NewReader("\n\n" + `{"op":"stats"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, serve(context.Background(), mgr, in, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 1)
}
