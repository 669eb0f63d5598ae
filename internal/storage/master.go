package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/summergraph/grag/internal/dedup"
	"github.com/summergraph/grag/pkg/types"
)

// MasterFileName is the flat list of every quintuple ever stored.
const MasterFileName = "quintuples.json"

// MasterStore persists the flat quintuple list backing the graph mirror.
// Records here dedup on the full five-field key; the type-files merge on
// the shorter subject|predicate|object key.
type MasterStore struct {
	path string

	mu  sync.Mutex
	now func() time.Time
}

// NewMasterStore creates the store, ensuring the file exists.
func NewMasterStore(dir string) (*MasterStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}

	s := &MasterStore{
		path: filepath.Join(dir, MasterFileName),
		now:  time.Now,
	}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := writeJSONFile(s.path, []*types.Quintuple{}); err != nil {
			return nil, fmt.Errorf("storage: init %s: %w", s.path, err)
		}
	}
	return s, nil
}

// Path returns the master file location.
func (s *MasterStore) Path() string {
	return s.path
}

// StoreQuintuples appends the quintuples whose full five-field key is new
// and returns how many were appended. A quintuple hitting an existing key
// merges into that record (max importance, session-id union) instead of
// duplicating or being dropped.
func (s *MasterStore) StoreQuintuples(quintuples []*types.Quintuple) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return 0, err
	}

	index := make(map[types.DedupKey]int, len(existing))
	for i, q := range existing {
		index[q.Key()] = i
	}

	added, merged := 0, 0
	for _, q := range quintuples {
		k := q.Key()
		if i, ok := index[k]; ok {
			existing[i] = dedup.MergeQuintuples([]*types.Quintuple{existing[i], q})
			merged++
			continue
		}
		existing = append(existing, q)
		index[k] = len(existing) - 1
		added++
	}
	if added == 0 && merged == 0 {
		return 0, nil
	}

	if err := writeJSONFile(s.path, existing); err != nil {
		return 0, fmt.Errorf("storage: write %s: %w", s.path, err)
	}
	if added > 0 {
		log.Printf("[storage] master list grew by %d to %d quintuples", added, len(existing))
	}
	return added, nil
}

// GetAll returns every stored quintuple.
func (s *MasterStore) GetAll() ([]*types.Quintuple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// QuintupleFilter narrows a master-list search. Zero fields are not
// applied.
type QuintupleFilter struct {
	Keywords            []string
	MemoryTypes         []types.MemoryType
	ImportanceThreshold float64
	TimeWindow          *time.Duration
}

// SearchQuintuples scans the master list. Keyword matching is a
// case-sensitive substring test over all five text fields; a record
// matches when any keyword hits (or when no keywords are given).
func (s *MasterStore) SearchQuintuples(filter QuintupleFilter) ([]*types.Quintuple, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}

	typeSet := make(map[types.MemoryType]bool, len(filter.MemoryTypes))
	for _, t := range filter.MemoryTypes {
		typeSet[t] = true
	}

	now := s.now()
	var out []*types.Quintuple
	for _, q := range all {
		if len(filter.Keywords) > 0 && !matchesAnyKeyword(q, filter.Keywords) {
			continue
		}
		if len(typeSet) > 0 && !typeSet[q.MemoryType] {
			continue
		}
		if q.ImportanceScore < filter.ImportanceThreshold {
			continue
		}
		if filter.TimeWindow != nil {
			ts := q.Time()
			if ts.IsZero() {
				ts = now
			}
			if now.Sub(ts) > *filter.TimeWindow {
				continue
			}
		}
		out = append(out, q)
	}
	return out, nil
}

// Count returns the master list length.
func (s *MasterStore) Count() (int, error) {
	all, err := s.GetAll()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// load decodes the master file. Legacy 5-element array records upgrade
// transparently through the quintuple decoder. A corrupt file loads as
// empty rather than wedging the pipeline.
func (s *MasterStore) load() ([]*types.Quintuple, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}

	var quintuples []*types.Quintuple
	if err := json.Unmarshal(data, &quintuples); err != nil {
		log.Printf("[storage] %s is corrupt, treating as empty: %v", s.path, err)
		return nil, nil
	}
	return quintuples, nil
}

// SetClock injects a clock for tests.
func (s *MasterStore) SetClock(now func() time.Time) {
	s.now = now
}
