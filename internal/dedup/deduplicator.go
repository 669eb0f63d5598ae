// Package dedup merges near-duplicate quintuples. Deduplication runs in two
// phases: a cheap exact-signature pass collapses identical facts, then an
// O(n²) weighted string-similarity pass merges semantic near-duplicates.
package dedup

import (
	"sort"
	"strings"
	"unicode"

	"github.com/summergraph/grag/pkg/types"
)

// Weights are the per-field contributions to composite similarity. Values
// are hand-tuned defaults carried over from the existing memory corpus; do
// not renormalize without re-validating dedup behavior on real data.
type Weights struct {
	Subject     float64
	SubjectType float64
	Predicate   float64
	Object      float64
	ObjectType  float64
}

// DefaultWeights returns the standard field weighting.
func DefaultWeights() Weights {
	return Weights{
		Subject:     0.3,
		SubjectType: 0.1,
		Predicate:   0.3,
		Object:      0.2,
		ObjectType:  0.1,
	}
}

// DefaultThreshold is the composite-similarity cutoff above which two
// quintuples count as the same fact.
const DefaultThreshold = 0.8

// Deduplicator computes pairwise quintuple similarity and merges groups of
// near-duplicates.
type Deduplicator struct {
	threshold float64
	weights   Weights
}

// NewDeduplicator creates a deduplicator with the given threshold and the
// default field weights. A threshold outside (0,1] falls back to the
// default.
func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{threshold: threshold, weights: DefaultWeights()}
}

// NewDeduplicatorWithWeights creates a deduplicator with custom field
// weights.
func NewDeduplicatorWithWeights(threshold float64, weights Weights) *Deduplicator {
	d := NewDeduplicator(threshold)
	d.weights = weights
	return d
}

// Similarity returns the composite similarity of two quintuples in [0,1]:
// the weighted sum of per-field sequence-match ratios.
func (d *Deduplicator) Similarity(a, b *types.Quintuple) float64 {
	return d.weights.Subject*sequenceRatio(a.Subject, b.Subject) +
		d.weights.SubjectType*sequenceRatio(a.SubjectType, b.SubjectType) +
		d.weights.Predicate*sequenceRatio(a.Predicate, b.Predicate) +
		d.weights.Object*sequenceRatio(a.Object, b.Object) +
		d.weights.ObjectType*sequenceRatio(a.ObjectType, b.ObjectType)
}

// AreSimilar reports whether the composite similarity reaches the threshold.
func (d *Deduplicator) AreSimilar(a, b *types.Quintuple) bool {
	return d.Similarity(a, b) >= d.threshold
}

// Deduplicate runs the semantic pass: groups quintuples by pairwise
// similarity and merges each group into one record. Input order is
// preserved for group leaders.
func (d *Deduplicator) Deduplicate(quintuples []*types.Quintuple) []*types.Quintuple {
	if len(quintuples) == 0 {
		return nil
	}

	groups := d.GroupBySimilarity(quintuples)
	out := make([]*types.Quintuple, 0, len(groups))
	for _, group := range groups {
		out = append(out, d.Merge(group))
	}
	return out
}

// GroupBySimilarity partitions quintuples into similarity groups. Each
// unprocessed quintuple seeds a group that absorbs every later quintuple
// similar to the seed.
func (d *Deduplicator) GroupBySimilarity(quintuples []*types.Quintuple) [][]*types.Quintuple {
	var groups [][]*types.Quintuple
	processed := make([]bool, len(quintuples))

	for i, q := range quintuples {
		if processed[i] {
			continue
		}
		group := []*types.Quintuple{q}
		processed[i] = true

		for j := i + 1; j < len(quintuples); j++ {
			if processed[j] {
				continue
			}
			if d.AreSimilar(q, quintuples[j]) {
				group = append(group, quintuples[j])
				processed[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// Merge collapses a similarity group into one record.
func (d *Deduplicator) Merge(group []*types.Quintuple) *types.Quintuple {
	return MergeQuintuples(group)
}

// MergeQuintuples collapses a group of duplicate records into one: the
// member with the latest timestamp is the base, importance is the group
// maximum, session ids are unioned, and MergedFrom accumulates how many
// original records the result stands for. The storage layer applies the
// same merge when a write hits an existing key, so batch dedup and
// sequential stores agree on semantics.
func MergeQuintuples(group []*types.Quintuple) *types.Quintuple {
	if len(group) == 0 {
		return nil
	}
	if len(group) == 1 {
		return group[0]
	}

	base := group[0]
	for _, q := range group[1:] {
		if q.Time().After(base.Time()) {
			base = q
		}
	}

	merged := *base

	maxImportance := group[0].ImportanceScore
	sessionSet := make(map[string]bool)
	var sessionIDs []string
	mergedFrom := 0
	for _, q := range group {
		if q.ImportanceScore > maxImportance {
			maxImportance = q.ImportanceScore
		}
		for _, id := range q.AllSessionIDs() {
			if !sessionSet[id] {
				sessionSet[id] = true
				sessionIDs = append(sessionIDs, id)
			}
		}
		if q.MergedFrom > 1 {
			mergedFrom += q.MergedFrom
		} else {
			mergedFrom++
		}
	}
	sort.Strings(sessionIDs)

	merged.ImportanceScore = maxImportance
	merged.SessionIDs = sessionIDs
	merged.MergedFrom = mergedFrom
	return &merged
}

// Signature is the fast-dedup key: normalized subject|predicate|object.
func (d *Deduplicator) Signature(q *types.Quintuple) string {
	return normalizeText(q.Subject) + "|" + normalizeText(q.Predicate) + "|" + normalizeText(q.Object)
}

// FastDeduplicate collapses exact-signature duplicates, keeping the first
// occurrence of each signature.
func (d *Deduplicator) FastDeduplicate(quintuples []*types.Quintuple) []*types.Quintuple {
	seen := make(map[string]bool, len(quintuples))
	var out []*types.Quintuple
	for _, q := range quintuples {
		sig := d.Signature(q)
		if !seen[sig] {
			seen[sig] = true
			out = append(out, q)
		}
	}
	return out
}

// SmartDeduplicate is the production entry point: fast exact pass first,
// semantic pass on the survivors.
func (d *Deduplicator) SmartDeduplicate(quintuples []*types.Quintuple) []*types.Quintuple {
	return d.Deduplicate(d.FastDeduplicate(quintuples))
}

// PatternAnalysis is the diagnostic summary of similarity structure in a
// batch.
type PatternAnalysis struct {
	TotalQuintuples    int     `json:"total_quintuples"`
	SimilarityGroups   int     `json:"similarity_groups"`
	UniqueQuintuples   int     `json:"unique_quintuples"`
	DuplicateGroups    int     `json:"duplicate_groups"`
	MaxGroupSize       int     `json:"max_group_size"`
	AverageGroupSize   float64 `json:"average_group_size"`
	DeduplicationRatio float64 `json:"deduplication_ratio"`
}

// AnalyzeSimilarityPatterns reports how much a batch would shrink under
// deduplication without mutating it.
func (d *Deduplicator) AnalyzeSimilarityPatterns(quintuples []*types.Quintuple) PatternAnalysis {
	if len(quintuples) < 2 {
		return PatternAnalysis{TotalQuintuples: len(quintuples)}
	}

	groups := d.GroupBySimilarity(quintuples)

	analysis := PatternAnalysis{
		TotalQuintuples:  len(quintuples),
		SimilarityGroups: len(groups),
	}
	totalSize := 0
	for _, g := range groups {
		totalSize += len(g)
		if len(g) == 1 {
			analysis.UniqueQuintuples++
		} else {
			analysis.DuplicateGroups++
		}
		if len(g) > analysis.MaxGroupSize {
			analysis.MaxGroupSize = len(g)
		}
	}
	analysis.AverageGroupSize = float64(totalSize) / float64(len(groups))
	analysis.DeduplicationRatio = float64(len(quintuples)-len(groups)) / float64(len(quintuples))
	return analysis
}

// normalizeText lowercases, strips punctuation and collapses whitespace.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
