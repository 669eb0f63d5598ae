// Package tasks runs memory extraction asynchronously: a bounded queue in
// front of a fixed worker pool, so conversation turns never block on the
// oracle.
package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/summergraph/grag/internal/config"
	"github.com/summergraph/grag/pkg/types"
)

// Pipeline processes one task's text into quintuples. It must honor
// context cancellation between stages so Cancel can interrupt a running
// task.
type Pipeline func(ctx context.Context, task *Task) ([]*types.Quintuple, error)

// Task is one queued extraction unit.
type Task struct {
	ID         string
	Text       string
	SessionID  string
	State      types.TaskState
	Result     []*types.Quintuple
	Err        string
	EnqueuedAt time.Time

	// cancel interrupts the task while it runs.
	cancel context.CancelFunc
}

// Manager owns the queue, the workers and the task table.
type Manager struct {
	cfg      config.TasksConfig
	pipeline Pipeline

	mu           sync.RWMutex
	tasks        map[string]*Task
	started      bool
	shuttingDown bool

	queue        chan *Task
	workerCtx    context.Context
	workerCancel context.CancelFunc
	wg           sync.WaitGroup

	onComplete func(*Task)
	onFailure  func(*Task)
}

// NewManager creates a stopped manager; workers start lazily on the first
// AddTask.
func NewManager(cfg config.TasksConfig, pipeline Pipeline) *Manager {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &Manager{
		cfg:      cfg,
		pipeline: pipeline,
		tasks:    make(map[string]*Task),
	}
}

// OnComplete registers a callback invoked after a task finishes
// successfully. The callback runs on the worker goroutine.
func (m *Manager) OnComplete(fn func(*Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = fn
}

// OnFailure registers a callback invoked after a task fails.
func (m *Manager) OnFailure(fn func(*Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailure = fn
}

// AddTask queues text for extraction and returns the task id immediately.
// The call never blocks: a full queue rejects the task with an error.
func (m *Manager) AddTask(text, sessionID string) (string, error) {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return "", fmt.Errorf("tasks: manager is shutting down")
	}
	if !m.started {
		m.startLocked()
	}

	task := &Task{
		ID:         uuid.NewString(),
		Text:       text,
		SessionID:  sessionID,
		State:      types.TaskStateQueued,
		EnqueuedAt: time.Now(),
	}
	m.tasks[task.ID] = task
	m.mu.Unlock()

	select {
	case m.queue <- task:
		return task.ID, nil
	default:
		m.mu.Lock()
		delete(m.tasks, task.ID)
		m.mu.Unlock()
		log.Printf("[tasks] queue full (size=%d), rejecting task", m.cfg.QueueSize)
		return "", fmt.Errorf("tasks: queue full (size=%d)", m.cfg.QueueSize)
	}
}

// startLocked spins up the workers. Caller holds m.mu.
func (m *Manager) startLocked() {
	m.queue = make(chan *Task, m.cfg.QueueSize)
	m.workerCtx, m.workerCancel = context.WithCancel(context.Background())
	for i := 0; i < m.cfg.NumWorkers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.started = true
	log.Printf("[tasks] started %d workers, queue size %d", m.cfg.NumWorkers, m.cfg.QueueSize)
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	log.Printf("[tasks] worker %d started", id)

	for task := range m.queue {
		m.process(task)
	}

	log.Printf("[tasks] worker %d stopped", id)
}

func (m *Manager) process(task *Task) {
	ctx, cancel := context.WithCancel(m.workerCtx)
	defer cancel()

	m.mu.Lock()
	if task.State != types.TaskStateQueued {
		// Cancelled while waiting in the queue.
		m.mu.Unlock()
		return
	}
	task.State = types.TaskStateRunning
	task.cancel = cancel
	onComplete, onFailure := m.onComplete, m.onFailure
	m.mu.Unlock()

	result, err := m.pipeline(ctx, task)

	m.mu.Lock()
	task.cancel = nil
	switch {
	case ctx.Err() != nil && m.workerCtx.Err() == nil:
		task.State = types.TaskStateCancelled
		task.Err = "cancelled"
	case err != nil:
		task.State = types.TaskStateFailed
		task.Err = err.Error()
	default:
		task.State = types.TaskStateCompleted
		task.Result = result
	}
	state := task.State
	m.mu.Unlock()

	switch state {
	case types.TaskStateCompleted:
		if onComplete != nil {
			onComplete(task)
		}
	case types.TaskStateFailed:
		log.Printf("[tasks] task %s failed: %v", task.ID, err)
		if onFailure != nil {
			onFailure(task)
		}
	case types.TaskStateCancelled:
		log.Printf("[tasks] task %s cancelled", task.ID)
	}
}

// Cancel stops a task: queued tasks are marked cancelled before they run,
// running tasks get their context cancelled and stop at the next pipeline
// stage. Terminal tasks cannot be cancelled.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("tasks: unknown task %s", id)
	}
	switch task.State {
	case types.TaskStateQueued:
		task.State = types.TaskStateCancelled
		task.Err = "cancelled"
		return nil
	case types.TaskStateRunning:
		if task.cancel != nil {
			task.cancel()
		}
		return nil
	default:
		return fmt.Errorf("tasks: task %s already %s", id, task.State)
	}
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return snapshot(task), true
}

// Stats counts tasks by state plus the current queue backlog.
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Backlog   int `json:"backlog"`
}

// Statistics returns the current task counts.
func (m *Manager) Statistics() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	for _, task := range m.tasks {
		switch task.State {
		case types.TaskStateQueued:
			s.Queued++
		case types.TaskStateRunning:
			s.Running++
		case types.TaskStateCompleted:
			s.Completed++
		case types.TaskStateFailed:
			s.Failed++
		case types.TaskStateCancelled:
			s.Cancelled++
		}
	}
	if m.queue != nil {
		s.Backlog = len(m.queue)
	}
	return s
}

// Stop drains the queue and waits for the workers, up to the configured
// shutdown timeout. Tasks still running after the timeout are cancelled.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started || m.shuttingDown {
		m.mu.Unlock()
		return nil
	}
	m.shuttingDown = true
	close(m.queue)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timeout := time.Duration(m.cfg.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		log.Printf("[tasks] all workers drained")
		m.workerCancel()
		return nil
	case <-time.After(timeout):
		m.workerCancel()
		<-done
		return fmt.Errorf("tasks: shutdown timed out after %s, running tasks were cancelled", timeout)
	}
}

func snapshot(t *Task) Task {
	return Task{
		ID:         t.ID,
		Text:       t.Text,
		SessionID:  t.SessionID,
		State:      t.State,
		Result:     t.Result,
		Err:        t.Err,
		EnqueuedAt: t.EnqueuedAt,
	}
}
