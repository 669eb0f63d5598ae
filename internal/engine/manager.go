// Package engine assembles the memory subsystem behind one façade. The
// Manager owns the pipeline: decision gate → async extraction → dedup →
// typed storage plus graph mirror, and the two read paths on top of it.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/summergraph/grag/internal/config"
	"github.com/summergraph/grag/internal/decision"
	"github.com/summergraph/grag/internal/dedup"
	"github.com/summergraph/grag/internal/entity"
	"github.com/summergraph/grag/internal/extractor"
	"github.com/summergraph/grag/internal/graph"
	"github.com/summergraph/grag/internal/llm"
	"github.com/summergraph/grag/internal/query"
	"github.com/summergraph/grag/internal/storage"
	"github.com/summergraph/grag/internal/tasks"
	"github.com/summergraph/grag/internal/timeline"
	"github.com/summergraph/grag/pkg/types"
)

// Manager wires the extraction, storage and query components together and
// exposes the conversation-facing operations.
type Manager struct {
	cfg *config.Config

	oracle    llm.Oracle
	analyzer  *extractor.Analyzer
	extractor *extractor.Extractor
	dedup     *dedup.Deduplicator
	typed     *storage.TypedStore
	master    *storage.MasterStore
	mirror    *graph.Mirror
	tasks     *tasks.Manager
	decisions *decision.Maker
	timeline  *timeline.Manager

	intelligent *query.IntelligentExtractor
	multimodal  *query.MultiModal
	entities    *entity.Disambiguator

	sessionID string

	mu       sync.Mutex
	recent   []string // last N conversation turns, newest last
	seen     map[string]bool
	seenKeys []string // insertion order for cache eviction
	hits     int
	misses   int
}

// NewManager builds the full subsystem from configuration. The graph
// mirror degrades to file-only storage when Neo4j is unreachable; every
// other component is required.
func NewManager(cfg *config.Config) (*Manager, error) {
	oracle := llm.NewClient(llm.ClientConfig{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
		Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	return NewManagerWithOracle(cfg, oracle)
}

// NewManagerWithOracle is NewManager with an injected oracle, used by
// callers that bring their own LLM transport and by tests.
func NewManagerWithOracle(cfg *config.Config, oracle llm.Oracle) (*Manager, error) {
	typed, err := storage.NewTypedStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("engine: typed store: %w", err)
	}
	master, err := storage.NewMasterStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("engine: master store: %w", err)
	}
	mirror, err := graph.NewMirror(cfg.Graph, master)
	if err != nil {
		return nil, fmt.Errorf("engine: graph mirror: %w", err)
	}
	entities, err := entity.NewDisambiguator(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("engine: entity table: %w", err)
	}

	analyzer := extractor.NewAnalyzer(oracle)
	ext := extractor.NewExtractor(oracle, analyzer, cfg.Extractor.AdvancedAnalysis,
		time.Duration(cfg.LLM.FallbackTimeoutSeconds)*time.Second)
	tl := timeline.NewManager()

	m := &Manager{
		cfg:         cfg,
		oracle:      oracle,
		analyzer:    analyzer,
		extractor:   ext,
		dedup:       dedup.NewDeduplicator(cfg.Dedup.SimilarityThreshold),
		typed:       typed,
		master:      master,
		mirror:      mirror,
		decisions:   decision.NewMaker(oracle, cfg.Decision.Enabled),
		timeline:    tl,
		intelligent: query.NewIntelligentExtractor(mirror, typed, tl),
		multimodal:  query.NewMultiModal(mirror, typed),
		entities:    entities,
		sessionID:   uuid.NewString(),
		seen:        make(map[string]bool),
	}
	m.tasks = tasks.NewManager(cfg.Tasks, m.pipeline)
	m.tasks.OnFailure(func(t *tasks.Task) {
		log.Printf("[engine] extraction task %s failed: %v", t.ID, t.Err)
	})
	return m, nil
}

// SessionID is the conversation session all stored memories are tagged
// with.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// GraphAvailable reports whether the Neo4j mirror is being written.
func (m *Manager) GraphAvailable() bool {
	return m.mirror.GraphAvailable()
}

// AddConversationMemory queues a finished conversation turn for memory
// extraction. It returns the task id, or an empty id when the turn was
// gated out (decision said no, or the exchange was already extracted).
func (m *Manager) AddConversationMemory(ctx context.Context, userInput, aiResponse string) (string, error) {
	if strings.TrimSpace(userInput) == "" && strings.TrimSpace(aiResponse) == "" {
		return "", nil
	}

	if m.decisions.Enabled() {
		d := m.decisions.DecideGeneration(ctx, userInput, aiResponse)
		if !d.ShouldStore {
			log.Printf("[engine] generation gate skipped storage: %s", d.StorageReason)
			return "", nil
		}
	}

	text := fmt.Sprintf("用户: %s\nAI: %s", userInput, aiResponse)

	m.mu.Lock()
	key := textDigest(text)
	if m.seen[key] {
		m.hits++
		m.mu.Unlock()
		log.Printf("[engine] exchange already extracted, skipping")
		return "", nil
	}
	m.misses++
	m.remember(key)
	m.pushTurn(text)
	m.mu.Unlock()

	return m.tasks.AddTask(text, m.sessionID)
}

// pipeline is the per-task extraction flow run by the worker pool:
// extract with the retained conversation turns as context, deduplicate,
// then store to the typed files and the graph.
func (m *Manager) pipeline(ctx context.Context, task *tasks.Task) ([]*types.Quintuple, error) {
	contextText := strings.Join(m.RecentContext(), "\n")
	quintuples := m.extractor.ExtractWithContext(ctx, task.Text, contextText, task.SessionID)
	if len(quintuples) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quintuples = m.dedup.SmartDeduplicate(quintuples)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, q := range quintuples {
		if err := m.typed.Store(q); err != nil {
			return nil, fmt.Errorf("engine: typed store: %w", err)
		}
		m.trackEntities(q)
	}
	if _, err := m.mirror.Store(ctx, quintuples); err != nil {
		return nil, fmt.Errorf("engine: mirror store: %w", err)
	}
	return quintuples, nil
}

// trackEntities feeds the subject and object of a stored quintuple into
// the entity table. Disambiguation failures only cost the entity record,
// not the memory.
func (m *Manager) trackEntities(q *types.Quintuple) {
	snippet := q.Subject + q.Predicate + q.Object
	subject, err := m.entities.Disambiguate(q.Subject, q.SubjectType, snippet, q.ImportanceScore)
	if err != nil {
		log.Printf("[engine] entity tracking (subject): %v", err)
		return
	}
	object, err := m.entities.Disambiguate(q.Object, q.ObjectType, snippet, q.ImportanceScore)
	if err != nil {
		log.Printf("[engine] entity tracking (object): %v", err)
		return
	}
	if err := m.entities.Relate(subject.ID, object.ID); err != nil {
		log.Printf("[engine] entity relation: %v", err)
	}
}

// QueryMemoryIntelligent answers a question from stored memories using
// strategy-routed retrieval. A nil result with nil error means the
// decision gate ruled the question does not need memory.
func (m *Manager) QueryMemoryIntelligent(ctx context.Context, question string) (*query.ExtractionResult, error) {
	if m.decisions.Enabled() {
		d := m.decisions.DecideQuery(ctx, question)
		if !d.ShouldQuery {
			log.Printf("[engine] query gate skipped lookup: %s", d.QueryReason)
			return nil, nil
		}
	}
	return m.intelligent.ExtractMemories(ctx, question, 10)
}

// Search runs a multi-modal search over stored memories.
func (m *Manager) Search(ctx context.Context, question string, opts query.Options) ([]query.SearchResult, error) {
	return m.multimodal.Search(ctx, question, opts)
}

// TaskStatus returns the state of an extraction task.
func (m *Manager) TaskStatus(id string) (tasks.Task, bool) {
	return m.tasks.Get(id)
}

// CancelTask cancels a queued or running extraction task.
func (m *Manager) CancelTask(id string) error {
	return m.tasks.Cancel(id)
}

// RecentContext returns the retained conversation turns, oldest first.
func (m *Manager) RecentContext() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.recent))
	copy(out, m.recent)
	return out
}

// Statistics aggregates counters from every component.
type Statistics struct {
	Storage   storage.Stats         `json:"storage"`
	Tasks     tasks.Stats           `json:"tasks"`
	Queries   query.QueryStatistics `json:"queries"`
	Entities  entity.Statistics     `json:"entities"`
	CacheHits int                   `json:"cache_hits"`
	CacheMiss int                   `json:"cache_misses"`
	Graph     bool                  `json:"graph_available"`
}

// Statistics reports the subsystem's operational counters.
func (m *Manager) Statistics() (Statistics, error) {
	storageStats, err := m.typed.Statistics()
	if err != nil {
		return Statistics{}, fmt.Errorf("engine: storage statistics: %w", err)
	}

	m.mu.Lock()
	hits, misses := m.hits, m.misses
	m.mu.Unlock()

	return Statistics{
		Storage:   storageStats,
		Tasks:     m.tasks.Statistics(),
		Queries:   m.intelligent.Statistics(),
		Entities:  m.entities.Statistics(),
		CacheHits: hits,
		CacheMiss: misses,
		Graph:     m.mirror.GraphAvailable(),
	}, nil
}

// Cleanup applies retention and size limits across the typed files and
// returns how many memories were evicted.
func (m *Manager) Cleanup() (int, error) {
	return m.typed.Cleanup()
}

// Shutdown drains the worker pool and closes the graph connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []string
	if err := m.tasks.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := m.mirror.Close(ctx); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("engine: shutdown: %s", strings.Join(errs, "; "))
	}
	log.Printf("[engine] shut down cleanly")
	return nil
}

// remember adds an extraction-cache key, evicting the oldest entry past
// the configured size. Caller holds m.mu.
func (m *Manager) remember(key string) {
	size := m.cfg.Extractor.CacheSize
	if size <= 0 {
		size = 256
	}
	m.seen[key] = true
	m.seenKeys = append(m.seenKeys, key)
	for len(m.seenKeys) > size {
		delete(m.seen, m.seenKeys[0])
		m.seenKeys = m.seenKeys[1:]
	}
}

// pushTurn appends a conversation turn to the context ring. Caller holds
// m.mu.
func (m *Manager) pushTurn(text string) {
	window := m.cfg.Extractor.ContextWindow
	if window <= 0 {
		window = 5
	}
	m.recent = append(m.recent, text)
	for len(m.recent) > window {
		m.recent = m.recent[1:]
	}
}

func textDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
