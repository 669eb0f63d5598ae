// Package entity gives recurring names a stable identity. Same-named
// mentions are matched to known entities by a composite similarity over
// name, type and context; misses create a new entity with a
// content-derived id.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/summergraph/grag/pkg/types"
)

// EntitiesFileName is the persisted entity table.
const EntitiesFileName = "entities.json"

// matchThreshold is the composite similarity above which a mention reuses
// an existing entity instead of creating a new one.
const matchThreshold = 0.7

// candidateFloor is the minimum similarity for context-index candidates.
const candidateFloor = 0.3

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Disambiguator maintains the entity table and its lookup indices.
type Disambiguator struct {
	path string

	mu       sync.Mutex
	entities map[string]*types.Entity

	// nameIndex and contextIndex map lowercased terms to entity ids.
	nameIndex    map[string]map[string]bool
	aliasIndex   map[string]map[string]bool
	contextIndex map[string]map[string]bool

	now func() time.Time
}

// NewDisambiguator loads (or initializes) the entity table under dir.
func NewDisambiguator(dir string) (*Disambiguator, error) {
	if dir == "" {
		return nil, fmt.Errorf("entity: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("entity: create dir %s: %w", dir, err)
	}

	d := &Disambiguator{
		path:         filepath.Join(dir, EntitiesFileName),
		entities:     make(map[string]*types.Entity),
		nameIndex:    make(map[string]map[string]bool),
		aliasIndex:   make(map[string]map[string]bool),
		contextIndex: make(map[string]map[string]bool),
		now:          time.Now,
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// Disambiguate resolves a mention to an existing entity when the best
// candidate scores at or above the match threshold, updating its sighting
// stats; otherwise it creates a new entity.
func (d *Disambiguator) Disambiguate(name, entityType, context string, confidence float64) (*types.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("entity: name is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if best, score := d.bestCandidate(name, entityType, context); best != nil && score >= matchThreshold {
		d.updateEntity(best, context, confidence)
		if err := d.save(); err != nil {
			return nil, err
		}
		return best, nil
	}

	e := &types.Entity{
		ID:         entityID(name, entityType, context),
		Name:       name,
		EntityType: entityType,
		Frequency:  1,
		Confidence: confidence,
		FirstSeen:  d.now(),
		LastSeen:   d.now(),
	}
	if context != "" {
		e.Contexts = []string{context}
	}
	d.entities[e.ID] = e
	d.index(e)
	if err := d.save(); err != nil {
		return nil, err
	}
	log.Printf("[entity] created %s (%s) id=%s", name, entityType, e.ID)
	return e, nil
}

// bestCandidate scores known entities sharing the mention's name or
// context words. Caller holds d.mu.
func (d *Disambiguator) bestCandidate(name, entityType, context string) (*types.Entity, float64) {
	seen := map[string]bool{}
	var best *types.Entity
	bestScore := 0.0

	consider := func(id string, floor float64) {
		if seen[id] {
			return
		}
		seen[id] = true
		e, ok := d.entities[id]
		if !ok {
			return
		}
		score := similarity(name, e.Name, entityType, e.EntityType, context, strings.Join(e.Contexts, " "))
		if score < floor {
			return
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}

	for id := range d.nameIndex[strings.ToLower(name)] {
		consider(id, 0)
	}
	for id := range d.aliasIndex[strings.ToLower(name)] {
		consider(id, 0)
	}
	for _, word := range contextWords(context) {
		for id := range d.contextIndex[word] {
			consider(id, candidateFloor)
		}
	}
	return best, bestScore
}

// updateEntity records another sighting. Caller holds d.mu.
func (d *Disambiguator) updateEntity(e *types.Entity, context string, confidence float64) {
	if context != "" && !containsString(e.Contexts, context) {
		e.Contexts = append(e.Contexts, context)
		for _, word := range contextWords(context) {
			d.indexTerm(d.contextIndex, word, e.ID)
		}
	}
	e.Frequency++
	e.LastSeen = d.now()
	if confidence > e.Confidence {
		e.Confidence = confidence
	}
}

// AddAlias registers an alternative name for an entity.
func (d *Disambiguator) AddAlias(entityID, alias string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entities[entityID]
	if !ok {
		return fmt.Errorf("entity: unknown entity %s", entityID)
	}
	if containsString(e.Aliases, alias) {
		return nil
	}
	e.Aliases = append(e.Aliases, alias)
	d.indexTerm(d.aliasIndex, strings.ToLower(alias), e.ID)
	return d.save()
}

// Relate records a symmetric relation between two entities.
func (d *Disambiguator) Relate(idA, idB string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, okA := d.entities[idA]
	b, okB := d.entities[idB]
	if !okA || !okB {
		return fmt.Errorf("entity: unknown entity in relation %s <-> %s", idA, idB)
	}
	if !containsString(a.RelatedEntities, idB) {
		a.RelatedEntities = append(a.RelatedEntities, idB)
	}
	if !containsString(b.RelatedEntities, idA) {
		b.RelatedEntities = append(b.RelatedEntities, idA)
	}
	return d.save()
}

// Get returns the entity by id.
func (d *Disambiguator) Get(id string) (*types.Entity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entities[id]
	return e, ok
}

// FindByName returns entities whose canonical name or alias matches,
// case-insensitive.
func (d *Disambiguator) FindByName(name string) []*types.Entity {
	d.mu.Lock()
	defer d.mu.Unlock()

	lower := strings.ToLower(name)
	ids := map[string]bool{}
	for id := range d.nameIndex[lower] {
		ids[id] = true
	}
	for id := range d.aliasIndex[lower] {
		ids[id] = true
	}

	var out []*types.Entity
	for id := range ids {
		if e, ok := d.entities[id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cleanup drops entities below the frequency or confidence floor and
// returns how many were removed.
func (d *Disambiguator) Cleanup(minFrequency int, minConfidence float64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var doomed []*types.Entity
	for _, e := range d.entities {
		if e.Frequency < minFrequency || e.Confidence < minConfidence {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		delete(d.entities, e.ID)
		delete(d.nameIndex[strings.ToLower(e.Name)], e.ID)
		for _, alias := range e.Aliases {
			delete(d.aliasIndex[strings.ToLower(alias)], e.ID)
		}
		for _, ctx := range e.Contexts {
			for _, word := range contextWords(ctx) {
				delete(d.contextIndex[word], e.ID)
			}
		}
	}
	if len(doomed) > 0 {
		if err := d.save(); err != nil {
			return 0, err
		}
		log.Printf("[entity] cleaned up %d low-quality entities", len(doomed))
	}
	return len(doomed), nil
}

// Statistics summarizes the entity table.
type Statistics struct {
	TotalEntities     int            `json:"total_entities"`
	TypeDistribution  map[string]int `json:"type_distribution"`
	AverageFrequency  float64        `json:"average_frequency"`
	AverageConfidence float64        `json:"average_confidence"`
	WithAliases       int            `json:"with_aliases"`
}

// Statistics computes counts over the entity table.
func (d *Disambiguator) Statistics() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := Statistics{TypeDistribution: make(map[string]int)}
	stats.TotalEntities = len(d.entities)
	if stats.TotalEntities == 0 {
		return stats
	}

	var freqSum int
	var confSum float64
	for _, e := range d.entities {
		stats.TypeDistribution[e.EntityType]++
		freqSum += e.Frequency
		confSum += e.Confidence
		if len(e.Aliases) > 0 {
			stats.WithAliases++
		}
	}
	stats.AverageFrequency = float64(freqSum) / float64(stats.TotalEntities)
	stats.AverageConfidence = confSum / float64(stats.TotalEntities)
	return stats
}

func (d *Disambiguator) load() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("entity: read %s: %w", d.path, err)
	}

	var table map[string]*types.Entity
	if err := json.Unmarshal(data, &table); err != nil {
		log.Printf("[entity] %s is corrupt, starting empty: %v", d.path, err)
		return nil
	}
	for id, e := range table {
		e.ID = id
		d.entities[id] = e
		d.index(e)
	}
	log.Printf("[entity] loaded %d entities", len(d.entities))
	return nil
}

// save rewrites the table. Caller holds d.mu.
func (d *Disambiguator) save() error {
	data, err := json.MarshalIndent(d.entities, "", "  ")
	if err != nil {
		return fmt.Errorf("entity: encode table: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("entity: write %s: %w", d.path, err)
	}
	return nil
}

// index registers an entity in every lookup index. Caller holds d.mu.
func (d *Disambiguator) index(e *types.Entity) {
	d.indexTerm(d.nameIndex, strings.ToLower(e.Name), e.ID)
	for _, alias := range e.Aliases {
		d.indexTerm(d.aliasIndex, strings.ToLower(alias), e.ID)
	}
	for _, ctx := range e.Contexts {
		for _, word := range contextWords(ctx) {
			d.indexTerm(d.contextIndex, word, e.ID)
		}
	}
}

func (d *Disambiguator) indexTerm(index map[string]map[string]bool, term, id string) {
	if index[term] == nil {
		index[term] = make(map[string]bool)
	}
	index[term][id] = true
}

// entityID derives a stable id from the mention's identifying content.
func entityID(name, entityType, context string) string {
	sum := sha256.Sum256([]byte(name + "|" + entityType + "|" + context))
	return "entity_" + hex.EncodeToString(sum[:])[:12]
}

// similarity blends name match (0.5 exact, 0.3 containment), type match
// (0.3) and context Jaccard overlap (x0.2), capped at 1.0.
func similarity(nameA, nameB, typeA, typeB, contextA, contextB string) float64 {
	score := 0.0

	la, lb := strings.ToLower(nameA), strings.ToLower(nameB)
	switch {
	case la == lb:
		score += 0.5
	case strings.Contains(lb, la) || strings.Contains(la, lb):
		score += 0.3
	}

	if typeA == typeB {
		score += 0.3
	}

	if contextA != "" && contextB != "" {
		wordsA := wordSet(contextA)
		wordsB := wordSet(contextB)
		if len(wordsA) > 0 && len(wordsB) > 0 {
			intersection := 0
			union := len(wordsB)
			for w := range wordsA {
				if wordsB[w] {
					intersection++
				} else {
					union++
				}
			}
			score += float64(intersection) / float64(union) * 0.2
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// contextWords tokenizes a context snippet, keeping words longer than two
// runes.
func contextWords(context string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(context), -1) {
		if len([]rune(w)) > 2 {
			out = append(out, w)
		}
	}
	return out
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		set[w] = true
	}
	return set
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
