package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summergraph/grag/internal/config"
	"github.com/summergraph/grag/pkg/types"
)

func testConfig() config.TasksConfig {
	return config.TasksConfig{NumWorkers: 2, QueueSize: 10, ShutdownTimeoutSeconds: 5}
}

func waitForState(t *testing.T, m *Manager, id string, want types.TaskState) Task {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := m.Get(id); ok && task.State == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	task, _ := m.Get(id)
	t.Fatalf("task %s never reached %s, stuck at %s", id, want, task.State)
	return Task{}
}

func TestAddTask_RunsPipelineAndCompletes(t *testing.T) {
	result := []*types.Quintuple{{
		Subject: "小明", SubjectType: "人物", Predicate: "是",
		Object: "学生", ObjectType: "身份",
		SessionID: "s1", MemoryType: types.MemoryTypeFact, ImportanceScore: 0.9,
	}}
	m := NewManager(testConfig(), func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		return result, nil
	})
	defer m.Stop()

	var mu sync.Mutex
	var completed []string
	m.OnComplete(func(task *Task) {
		mu.Lock()
		completed = append(completed, task.ID)
		mu.Unlock()
	})

	id, err := m.AddTask("小明是学生", "s1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task := waitForState(t, m, id, types.TaskStateCompleted)
	assert.Len(t, task.Result, 1)
	assert.Equal(t, "小明", task.Result[0].Subject)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, completed, id)
}

func TestAddTask_UniqueIDs(t *testing.T) {
	m := NewManager(testConfig(), func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		return nil, nil
	})
	defer m.Stop()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := m.AddTask("text", "s1")
		require.NoError(t, err)
		require.False(t, seen[id], "task ids must be unique")
		seen[id] = true
	}
}

func TestAddTask_QueueFullRejects(t *testing.T) {
	block := make(chan struct{})
	cfg := config.TasksConfig{NumWorkers: 1, QueueSize: 1, ShutdownTimeoutSeconds: 1}
	m := NewManager(cfg, func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		<-block
		return nil, nil
	})
	defer func() {
		close(block)
		m.Stop()
	}()

	// First task occupies the worker, second fills the queue.
	_, err := m.AddTask("a", "s1")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = m.AddTask("b", "s1")
	require.NoError(t, err)

	_, err = m.AddTask("c", "s1")
	assert.Error(t, err, "a full queue must reject, not block")
}

func TestPipelineError_MarksFailed(t *testing.T) {
	m := NewManager(testConfig(), func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		return nil, errors.New("oracle unreachable")
	})
	defer m.Stop()

	var mu sync.Mutex
	failed := 0
	m.OnFailure(func(*Task) {
		mu.Lock()
		failed++
		mu.Unlock()
	})

	id, err := m.AddTask("text", "s1")
	require.NoError(t, err)

	task := waitForState(t, m, id, types.TaskStateFailed)
	assert.Contains(t, task.Err, "oracle unreachable")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, failed)
}

func TestCancel_QueuedTaskNeverRuns(t *testing.T) {
	block := make(chan struct{})
	ran := make(chan string, 10)
	cfg := config.TasksConfig{NumWorkers: 1, QueueSize: 5, ShutdownTimeoutSeconds: 1}
	m := NewManager(cfg, func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		ran <- task.ID
		<-block
		return nil, nil
	})
	defer func() {
		close(block)
		m.Stop()
	}()

	first, err := m.AddTask("running", "s1")
	require.NoError(t, err)
	select {
	case got := <-ran:
		require.Equal(t, first, got)
	case <-time.After(time.Second):
		t.Fatal("first task never started")
	}

	queued, err := m.AddTask("queued", "s1")
	require.NoError(t, err)
	require.NoError(t, m.Cancel(queued))

	task, ok := m.Get(queued)
	require.True(t, ok)
	assert.Equal(t, types.TaskStateCancelled, task.State)
	assert.True(t, task.State.Terminal())
}

func TestCancel_RunningTaskStopsAtNextStage(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(testConfig(), func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	defer m.Stop()

	id, err := m.AddTask("text", "s1")
	require.NoError(t, err)
	<-started
	require.NoError(t, m.Cancel(id))

	task := waitForState(t, m, id, types.TaskStateCancelled)
	assert.NotEqual(t, types.TaskStateFailed, task.State, "cancellation must not report as failure")
}

func TestCancel_TerminalTaskErrors(t *testing.T) {
	m := NewManager(testConfig(), func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		return nil, nil
	})
	defer m.Stop()

	id, err := m.AddTask("text", "s1")
	require.NoError(t, err)
	waitForState(t, m, id, types.TaskStateCompleted)

	assert.Error(t, m.Cancel(id))
}

func TestStop_DrainsQueuedWork(t *testing.T) {
	var mu sync.Mutex
	processed := 0
	m := NewManager(testConfig(), func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		processed++
		mu.Unlock()
		return nil, nil
	})

	for i := 0; i < 5; i++ {
		_, err := m.AddTask("text", "s1")
		require.NoError(t, err)
	}
	require.NoError(t, m.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, processed, "stop must drain queued tasks")

	_, err := m.AddTask("late", "s1")
	assert.Error(t, err, "no new work after shutdown")
}

func TestStatistics_CountsByState(t *testing.T) {
	m := NewManager(testConfig(), func(ctx context.Context, task *Task) ([]*types.Quintuple, error) {
		return nil, nil
	})
	defer m.Stop()

	id, err := m.AddTask("text", "s1")
	require.NoError(t, err)
	waitForState(t, m, id, types.TaskStateCompleted)

	stats := m.Statistics()
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
}
