package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/summergraph/grag/pkg/types"
)

// TypeStats summarizes one type-file.
type TypeStats struct {
	Count         int     `json:"count"`
	AvgImportance float64 `json:"avg_importance"`
	MaxImportance float64 `json:"max_importance"`
	MinImportance float64 `json:"min_importance"`
	RetentionDays int     `json:"retention_days"`
	MaxSize       int     `json:"max_size"`
	UsageRatio    float64 `json:"usage_ratio"`
}

// Stats summarizes the whole typed store.
type Stats struct {
	TotalMemories int                            `json:"total_memories"`
	ByType        map[types.MemoryType]TypeStats `json:"by_type"`
}

// Statistics computes per-type counts and importance aggregates.
func (s *TypedStore) Statistics() (Stats, error) {
	stats := Stats{ByType: make(map[types.MemoryType]TypeStats)}

	for _, t := range types.AllMemoryTypes() {
		s.locks[t].Lock()
		memories, err := s.load(t)
		s.locks[t].Unlock()
		if err != nil {
			return stats, err
		}

		cfg := s.configs[t]
		ts := TypeStats{
			Count:         len(memories),
			RetentionDays: cfg.RetentionDays,
			MaxSize:       cfg.MaxSize,
		}
		if len(memories) > 0 {
			sum := 0.0
			ts.MaxImportance = memories[0].ImportanceScore
			ts.MinImportance = memories[0].ImportanceScore
			for _, m := range memories {
				sum += m.ImportanceScore
				if m.ImportanceScore > ts.MaxImportance {
					ts.MaxImportance = m.ImportanceScore
				}
				if m.ImportanceScore < ts.MinImportance {
					ts.MinImportance = m.ImportanceScore
				}
			}
			ts.AvgImportance = sum / float64(len(memories))
		}
		if cfg.MaxSize > 0 {
			ts.UsageRatio = float64(len(memories)) / float64(cfg.MaxSize)
		}

		stats.ByType[t] = ts
		stats.TotalMemories += len(memories)
	}
	return stats, nil
}

// ImportStrategy selects how imported memories combine with existing ones.
type ImportStrategy string

const (
	// ImportMerge adds imported memories whose key is not already stored.
	ImportMerge ImportStrategy = "merge"
	// ImportReplace overwrites each imported type-file wholesale.
	ImportReplace ImportStrategy = "replace"
)

// Export writes the selected types (all when empty) to one combined JSON
// file and returns its path. An empty outputFile derives a timestamped name
// under the storage directory.
func (s *TypedStore) Export(memoryTypes []types.MemoryType, outputFile string) (string, error) {
	if len(memoryTypes) == 0 {
		memoryTypes = types.AllMemoryTypes()
	}
	if outputFile == "" {
		outputFile = filepath.Join(s.dir, fmt.Sprintf("exported_memories_%d.json", s.now().Unix()))
	}

	exported := make(map[types.MemoryType][]*types.Quintuple, len(memoryTypes))
	for _, t := range memoryTypes {
		s.locks[t].Lock()
		memories, err := s.load(t)
		s.locks[t].Unlock()
		if err != nil {
			return "", err
		}
		if memories == nil {
			memories = []*types.Quintuple{}
		}
		exported[t] = memories
	}

	if err := writeJSONFile(outputFile, exported); err != nil {
		return "", fmt.Errorf("storage: export to %s: %w", outputFile, err)
	}
	return outputFile, nil
}

// Import loads a combined export file. With ImportMerge, existing records
// keep priority and imported records with a colliding key are skipped; with
// ImportReplace each type-file is overwritten. Unknown memory types in the
// file are skipped.
func (s *TypedStore) Import(importFile string, strategy ImportStrategy) (int, error) {
	data, err := os.ReadFile(importFile)
	if err != nil {
		return 0, fmt.Errorf("storage: read import file: %w", err)
	}

	var imported map[types.MemoryType][]*types.Quintuple
	if err := json.Unmarshal(data, &imported); err != nil {
		return 0, fmt.Errorf("storage: parse import file: %w", err)
	}

	count := 0
	for t, memories := range imported {
		if !t.IsValid() {
			continue
		}

		s.locks[t].Lock()
		switch strategy {
		case ImportMerge:
			existing, err := s.load(t)
			if err != nil {
				s.locks[t].Unlock()
				return count, err
			}
			keys := make(map[string]bool, len(existing))
			for _, m := range existing {
				keys[m.IndexKey()] = true
			}
			for _, m := range memories {
				if !keys[m.IndexKey()] {
					existing = append(existing, m)
					keys[m.IndexKey()] = true
				}
			}
			err = s.save(t, existing)
			if err != nil {
				s.locks[t].Unlock()
				return count, err
			}
		case ImportReplace:
			if err := s.save(t, memories); err != nil {
				s.locks[t].Unlock()
				return count, err
			}
		default:
			s.locks[t].Unlock()
			return count, fmt.Errorf("storage: unknown import strategy %q", strategy)
		}
		s.locks[t].Unlock()
		count += len(memories)
	}
	return count, nil
}

// SetClock injects a clock for tests.
func (s *TypedStore) SetClock(now func() time.Time) {
	s.now = now
}
