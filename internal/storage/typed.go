// Package storage persists quintuple memories as JSON files under the
// knowledge-graph directory: one file per memory type plus the flat master
// list. File layout and field names are a compatibility contract with
// existing on-disk data, including the legacy 5-element array format.
//
// Every type-file write runs under a per-type mutex across the whole
// load-modify-save cycle. Concurrent task completions previously raced on
// this read-modify-write pattern and could drop writes; the lock is a
// correctness fix, not a style choice.
package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/summergraph/grag/internal/dedup"
	"github.com/summergraph/grag/pkg/types"
)

// TypeConfig is the storage policy for one memory type.
type TypeConfig struct {
	FileName      string
	MaxSize       int
	RetentionDays int
	Compressed    bool
	Priority      string
}

// typeConfigs fixes the per-type retention and capacity policy.
func typeConfigs() map[types.MemoryType]TypeConfig {
	return map[types.MemoryType]TypeConfig{
		types.MemoryTypeFact: {
			FileName:      "fact_memories.json",
			MaxSize:       10000,
			RetentionDays: 365,
			Priority:      "standard",
		},
		types.MemoryTypeProcess: {
			FileName:      "process_memories.json",
			MaxSize:       5000,
			RetentionDays: 90,
			Compressed:    true,
			Priority:      "compressed",
		},
		types.MemoryTypeEmotion: {
			FileName:      "emotion_memories.json",
			MaxSize:       3000,
			RetentionDays: 180,
			Priority:      "high_priority",
		},
		types.MemoryTypeMeta: {
			FileName:      "meta_memories.json",
			MaxSize:       2000,
			RetentionDays: 730,
			Priority:      "standard",
		},
	}
}

// TypedStore routes quintuples to per-type JSON files with type-specific
// retention and size policies.
type TypedStore struct {
	dir     string
	configs map[types.MemoryType]TypeConfig

	// locks serializes load-modify-save per type-file.
	locks map[types.MemoryType]*sync.Mutex

	now func() time.Time
}

// NewTypedStore creates the store, ensuring the directory and the four
// type-files exist.
func NewTypedStore(dir string) (*TypedStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}

	s := &TypedStore{
		dir:     dir,
		configs: typeConfigs(),
		locks:   make(map[types.MemoryType]*sync.Mutex),
		now:     time.Now,
	}
	for _, t := range types.AllMemoryTypes() {
		s.locks[t] = &sync.Mutex{}
		path := s.filePath(t)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := writeJSONFile(path, []*types.Quintuple{}); err != nil {
				return nil, fmt.Errorf("storage: init %s: %w", path, err)
			}
		}
	}
	return s, nil
}

// Config returns the storage policy for a memory type.
func (s *TypedStore) Config(t types.MemoryType) TypeConfig {
	return s.configs[t]
}

func (s *TypedStore) filePath(t types.MemoryType) string {
	return filepath.Join(s.dir, s.configs[t].FileName)
}

// Store persists the quintuple into its type-file. A record with the same
// subject|predicate|object key is merged in place (max importance,
// session-id union, latest-timestamp base); otherwise the record is
// appended. Retention and size policies re-apply on every write.
func (s *TypedStore) Store(q *types.Quintuple) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	t := q.MemoryType

	s.locks[t].Lock()
	defer s.locks[t].Unlock()

	memories, err := s.load(t)
	if err != nil {
		return err
	}

	key := q.IndexKey()
	merged := false
	for i, m := range memories {
		if m.IndexKey() == key {
			memories[i] = dedup.MergeQuintuples([]*types.Quintuple{m, q})
			merged = true
			break
		}
	}
	if !merged {
		memories = append(memories, q)
	}

	if err := s.save(t, memories); err != nil {
		return err
	}
	log.Printf("[storage] stored %s memory: %s -%s- %s", t, q.Subject, q.Predicate, q.Object)
	return nil
}

// GetByType returns memories of one type with importance >= minImportance,
// sorted by importance descending, capped at limit when limit > 0.
func (s *TypedStore) GetByType(t types.MemoryType, limit int, minImportance float64) ([]*types.Quintuple, error) {
	s.locks[t].Lock()
	memories, err := s.load(t)
	s.locks[t].Unlock()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Quintuple
	for _, m := range memories {
		if m.ImportanceScore >= minImportance {
			filtered = append(filtered, m)
		}
	}
	sortByImportance(filtered)
	return capSlice(filtered, limit), nil
}

// GetByTypes returns memories across several types, sorted by importance
// descending, capped at limit when limit > 0.
func (s *TypedStore) GetByTypes(memoryTypes []types.MemoryType, limit int, minImportance float64) ([]*types.Quintuple, error) {
	var all []*types.Quintuple
	for _, t := range memoryTypes {
		batch, err := s.GetByType(t, 0, minImportance)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	sortByImportance(all)
	return capSlice(all, limit), nil
}

// Search scans the requested type-files (all when memoryTypes is empty) and
// returns memories where any keyword is a substring of subject, predicate,
// object, subject_type or object_type. Matching is case-sensitive; mixed
// case queries return fewer results than the graph backend's CONTAINS and
// the behaviors are deliberately left unaligned.
func (s *TypedStore) Search(keywords []string, memoryTypes []types.MemoryType, limit int) ([]*types.Quintuple, error) {
	if len(memoryTypes) == 0 {
		memoryTypes = types.AllMemoryTypes()
	}

	var results []*types.Quintuple
	for _, t := range memoryTypes {
		s.locks[t].Lock()
		memories, err := s.load(t)
		s.locks[t].Unlock()
		if err != nil {
			return nil, err
		}
		for _, m := range memories {
			if matchesAnyKeyword(m, keywords) {
				results = append(results, m)
			}
		}
	}

	sortByImportance(results)
	return capSlice(results, limit), nil
}

// Cleanup applies the retention policy to every type-file and returns the
// total number of evicted memories.
func (s *TypedStore) Cleanup() (int, error) {
	evicted := 0
	for _, t := range types.AllMemoryTypes() {
		s.locks[t].Lock()
		memories, err := s.load(t)
		if err != nil {
			s.locks[t].Unlock()
			return evicted, err
		}

		kept := s.applyRetention(memories, s.configs[t].RetentionDays)
		if len(kept) < len(memories) {
			if err := s.save(t, kept); err != nil {
				s.locks[t].Unlock()
				return evicted, err
			}
			evicted += len(memories) - len(kept)
			log.Printf("[storage] cleaned %s memories: %d -> %d", t, len(memories), len(kept))
		}
		s.locks[t].Unlock()
	}
	return evicted, nil
}

// Recent returns memories of one type created in the last N hours, newest
// first.
func (s *TypedStore) Recent(t types.MemoryType, hours int) ([]*types.Quintuple, error) {
	s.locks[t].Lock()
	memories, err := s.load(t)
	s.locks[t].Unlock()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	var recent []*types.Quintuple
	for _, m := range memories {
		ts := m.Time()
		if ts.IsZero() {
			ts = s.now()
		}
		if !ts.Before(cutoff) {
			recent = append(recent, m)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Time().After(recent[j].Time())
	})
	return recent, nil
}

// BySession returns memories carrying the given session id across the
// requested types (all when empty), newest first.
func (s *TypedStore) BySession(sessionID string, memoryTypes []types.MemoryType) ([]*types.Quintuple, error) {
	if len(memoryTypes) == 0 {
		memoryTypes = types.AllMemoryTypes()
	}

	var out []*types.Quintuple
	for _, t := range memoryTypes {
		s.locks[t].Lock()
		memories, err := s.load(t)
		s.locks[t].Unlock()
		if err != nil {
			return nil, err
		}
		for _, m := range memories {
			for _, id := range m.AllSessionIDs() {
				if id == sessionID {
					out = append(out, m)
					break
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().After(out[j].Time())
	})
	return out, nil
}

// load reads and decodes one type-file. A missing or corrupt file loads as
// empty; storage is best-effort and must not wedge on a bad file.
func (s *TypedStore) load(t types.MemoryType) ([]*types.Quintuple, error) {
	data, err := os.ReadFile(s.filePath(t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", s.filePath(t), err)
	}

	var memories []*types.Quintuple
	if err := json.Unmarshal(data, &memories); err != nil {
		log.Printf("[storage] %s is corrupt, treating as empty: %v", s.filePath(t), err)
		return nil, nil
	}
	return memories, nil
}

// save applies retention then size limiting and rewrites the type-file
// wholesale. Caller must hold the type lock.
func (s *TypedStore) save(t types.MemoryType, memories []*types.Quintuple) error {
	cfg := s.configs[t]
	memories = s.applyRetention(memories, cfg.RetentionDays)
	memories = applySizeLimit(memories, cfg.MaxSize)

	if err := writeJSONFile(s.filePath(t), memories); err != nil {
		return fmt.Errorf("storage: write %s: %w", s.filePath(t), err)
	}
	return nil
}

// applyRetention drops memories older than the retention cutoff. Memories
// without a usable timestamp count as created now and are kept.
func (s *TypedStore) applyRetention(memories []*types.Quintuple, retentionDays int) []*types.Quintuple {
	if retentionDays <= 0 {
		return memories
	}
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	kept := memories[:0:0]
	for _, m := range memories {
		ts := m.Time()
		if ts.IsZero() || !ts.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	return kept
}

// applySizeLimit keeps the top maxSize memories by importance.
func applySizeLimit(memories []*types.Quintuple, maxSize int) []*types.Quintuple {
	if maxSize <= 0 || len(memories) <= maxSize {
		return memories
	}
	sorted := make([]*types.Quintuple, len(memories))
	copy(sorted, memories)
	sortByImportance(sorted)
	return sorted[:maxSize]
}

func matchesAnyKeyword(q *types.Quintuple, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(q.Subject, kw) ||
			strings.Contains(q.Predicate, kw) ||
			strings.Contains(q.Object, kw) ||
			strings.Contains(q.SubjectType, kw) ||
			strings.Contains(q.ObjectType, kw) {
			return true
		}
	}
	return false
}

func sortByImportance(memories []*types.Quintuple) {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].ImportanceScore > memories[j].ImportanceScore
	})
}

func capSlice(memories []*types.Quintuple, limit int) []*types.Quintuple {
	if limit > 0 && len(memories) > limit {
		return memories[:limit]
	}
	return memories
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
