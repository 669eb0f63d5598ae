package query

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/summergraph/grag/internal/storage"
	"github.com/summergraph/grag/pkg/types"
)

// DefaultFuzzyThreshold is the character-overlap similarity cutoff for
// fuzzy matches.
const DefaultFuzzyThreshold = 0.7

// Options tunes one multi-modal search.
type Options struct {
	Modes          []types.SearchMode
	Scope          types.SearchScope
	MaxResults     int
	MinRelevance   float64
	TimeWindow     *time.Duration
	MemoryTypes    []types.MemoryType
	FuzzyThreshold float64
}

// DefaultOptions mirrors the historical defaults: keyword plus semantic
// search over the full record.
func DefaultOptions() Options {
	return Options{
		Modes:          []types.SearchMode{types.SearchModeKeyword, types.SearchModeSemantic},
		Scope:          types.ScopeFull,
		MaxResults:     10,
		MinRelevance:   0.3,
		FuzzyThreshold: DefaultFuzzyThreshold,
	}
}

// SearchResult is one ranked hit with its provenance.
type SearchResult struct {
	Quintuple      *types.Quintuple `json:"quintuple"`
	RelevanceScore float64          `json:"relevance_score"`
	MatchType      string           `json:"match_type"`
	SearchMode     types.SearchMode `json:"search_mode"`
	Rank           int              `json:"rank"`
}

// MultiModal is the general-purpose retrieval façade. Unlike the
// intelligent extractor it does no query classification; callers pick the
// modes explicitly.
type MultiModal struct {
	source QuintupleSource
	typed  TypedSource
}

// NewMultiModal wires the query system to its retrieval backends.
func NewMultiModal(source QuintupleSource, typed TypedSource) *MultiModal {
	return &MultiModal{source: source, typed: typed}
}

// Search runs every requested mode, merges the hits deduplicated on
// (subject, predicate, object) keeping the higher score, and returns them
// ranked.
func (m *MultiModal) Search(ctx context.Context, question string, opts Options) ([]SearchResult, error) {
	if len(opts.Modes) == 0 {
		opts = DefaultOptions()
	}
	if opts.Scope == "" {
		opts.Scope = types.ScopeFull
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}

	var all []SearchResult
	for _, mode := range opts.Modes {
		results, err := m.searchByMode(ctx, question, mode, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}

	merged := mergeResults(all)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RelevanceScore > merged[j].RelevanceScore
	})
	if opts.MaxResults > 0 && len(merged) > opts.MaxResults {
		merged = merged[:opts.MaxResults]
	}
	for i := range merged {
		merged[i].Rank = i + 1
	}
	log.Printf("[query] multi-modal search returned %d results", len(merged))
	return merged, nil
}

// searchByMode dispatches one mode. The switch is exhaustive over the
// search modes.
func (m *MultiModal) searchByMode(ctx context.Context, question string, mode types.SearchMode, opts Options) ([]SearchResult, error) {
	switch mode {
	case types.SearchModeKeyword:
		return m.keywordSearch(ctx, question, opts)
	case types.SearchModeSemantic:
		return m.semanticSearch(ctx, question, opts)
	case types.SearchModeGraph:
		return m.graphSearch(ctx, question, opts)
	case types.SearchModeFuzzy:
		return m.fuzzySearch(question, opts)
	case types.SearchModeHybrid:
		keyword, err := m.keywordSearch(ctx, question, opts)
		if err != nil {
			return nil, err
		}
		semantic, err := m.semanticSearch(ctx, question, opts)
		if err != nil {
			return nil, err
		}
		return mergeResults(append(keyword, semantic...)), nil
	default:
		return nil, nil
	}
}

func (m *MultiModal) keywordSearch(ctx context.Context, question string, opts Options) ([]SearchResult, error) {
	keywords := ExtractKeywords(question)
	quintuples, err := m.source.QueryByKeywords(ctx, keywords, m.filter(opts, opts.MinRelevance))
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, q := range quintuples {
		score := scopedKeywordRelevance(q, keywords, opts.Scope)
		if score >= opts.MinRelevance {
			results = append(results, SearchResult{
				Quintuple:      q,
				RelevanceScore: score,
				MatchType:      "keyword",
				SearchMode:     types.SearchModeKeyword,
			})
		}
	}
	return results, nil
}

func (m *MultiModal) semanticSearch(ctx context.Context, question string, opts Options) ([]SearchResult, error) {
	keywords := ExtractKeywords(question)
	expanded := ExpandKeywords(keywords)

	var results []SearchResult
	for _, term := range expanded {
		quintuples, err := m.source.QueryByKeywords(ctx, []string{term}, m.filter(opts, opts.MinRelevance))
		if err != nil {
			return nil, err
		}
		for _, q := range quintuples {
			// Expanded terms are weaker evidence than direct hits.
			score := scopedKeywordRelevance(q, keywords, opts.Scope) * 0.8
			if score >= opts.MinRelevance {
				results = append(results, SearchResult{
					Quintuple:      q,
					RelevanceScore: score,
					MatchType:      "semantic",
					SearchMode:     types.SearchModeSemantic,
				})
			}
		}
	}
	return results, nil
}

func (m *MultiModal) graphSearch(ctx context.Context, question string, opts Options) ([]SearchResult, error) {
	entities := ExtractEntities(question)
	if len(entities) == 0 {
		return nil, nil
	}

	var results []SearchResult
	for _, entity := range entities {
		quintuples, err := m.source.QueryByKeywords(ctx, []string{entity}, m.filter(opts, opts.MinRelevance))
		if err != nil {
			return nil, err
		}
		for _, q := range quintuples {
			score := entityRelevance(q, entities)
			if score >= opts.MinRelevance {
				results = append(results, SearchResult{
					Quintuple:      q,
					RelevanceScore: score,
					MatchType:      "graph",
					SearchMode:     types.SearchModeGraph,
				})
			}
		}
	}
	return results, nil
}

// fuzzySearch scans a type-store candidate pool with wildcard patterns
// and a character-overlap similarity, so near-miss spellings still hit.
func (m *MultiModal) fuzzySearch(question string, opts Options) ([]SearchResult, error) {
	keywords := ExtractKeywords(question)
	patterns := FuzzyPatterns(keywords)
	if len(patterns) == 0 {
		return nil, nil
	}

	memoryTypes := opts.MemoryTypes
	if len(memoryTypes) == 0 {
		memoryTypes = types.AllMemoryTypes()
	}
	// Lowered importance floor: fuzzy matching filters on similarity.
	candidates, err := m.typed.GetByTypes(memoryTypes, 0, opts.MinRelevance*0.8)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, q := range candidates {
		text := scopedText(q, opts.Scope)
		if !anyPatternMatches(patterns, text) {
			continue
		}
		score := fuzzyRelevance(keywords, text, opts.FuzzyThreshold)
		if score >= opts.FuzzyThreshold {
			results = append(results, SearchResult{
				Quintuple:      q,
				RelevanceScore: score,
				MatchType:      "fuzzy",
				SearchMode:     types.SearchModeFuzzy,
			})
		}
	}
	return results, nil
}

func (m *MultiModal) filter(opts Options, threshold float64) storage.QuintupleFilter {
	return storage.QuintupleFilter{
		MemoryTypes:         opts.MemoryTypes,
		ImportanceThreshold: threshold,
		TimeWindow:          opts.TimeWindow,
	}
}

// FuzzyPatterns builds the wildcard variants for each keyword: contains,
// prefix and suffix.
func FuzzyPatterns(keywords []string) []string {
	var patterns []string
	for _, kw := range keywords {
		if len([]rune(kw)) >= 2 {
			patterns = append(patterns, "*"+kw+"*", kw+"*", "*"+kw)
		}
	}
	return patterns
}

// matchPattern applies the three wildcard shapes against the text.
func matchPattern(pattern, text string) bool {
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(text, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(text, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(text, strings.TrimPrefix(pattern, "*"))
	default:
		return strings.Contains(text, pattern)
	}
}

func anyPatternMatches(patterns []string, text string) bool {
	for _, p := range patterns {
		if matchPattern(p, text) {
			return true
		}
	}
	return false
}

// charOverlap is |charset(a) ∩ charset(b)| / max(len(a), len(b)) over
// runes.
func charOverlap(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}

	setA := map[rune]bool{}
	for _, r := range ra {
		setA[r] = true
	}
	common := map[rune]bool{}
	for _, r := range rb {
		if setA[r] {
			common[r] = true
		}
	}
	return float64(len(common)) / float64(maxLen)
}

// fuzzyRelevance is the fraction of query keywords with a fuzzy match in
// the text's words.
func fuzzyRelevance(keywords []string, text string, threshold float64) float64 {
	if len(keywords) == 0 {
		return 0
	}
	words := strings.Fields(text)
	matches := 0
	for _, kw := range keywords {
		for _, w := range words {
			if kw == w || charOverlap(kw, w) >= threshold {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(keywords))
}

func scopedText(q *types.Quintuple, scope types.SearchScope) string {
	switch scope {
	case types.ScopeSubject:
		return q.Subject
	case types.ScopePredicate:
		return q.Predicate
	case types.ScopeObject:
		return q.Object
	default:
		return strings.Join([]string{q.Subject, q.Predicate, q.Object, q.SubjectType, q.ObjectType}, " ")
	}
}

// scopedKeywordRelevance is the fraction of keywords present in the
// scope-restricted text, case-insensitive.
func scopedKeywordRelevance(q *types.Quintuple, keywords []string, scope types.SearchScope) float64 {
	if len(keywords) == 0 {
		return 0
	}
	text := strings.ToLower(scopedText(q, scope))
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

// entityRelevance is the fraction of entities appearing in the subject or
// object.
func entityRelevance(q *types.Quintuple, entities []string) float64 {
	if len(entities) == 0 {
		return 0
	}
	matches := 0
	for _, e := range entities {
		if strings.Contains(q.Subject, e) || strings.Contains(q.Object, e) {
			matches++
		}
	}
	return float64(matches) / float64(len(entities))
}

// mergeResults dedups on (subject, predicate, object), keeping the higher
// scoring hit.
func mergeResults(results []SearchResult) []SearchResult {
	index := map[string]int{}
	var merged []SearchResult
	for _, r := range results {
		key := r.Quintuple.IndexKey()
		if i, ok := index[key]; ok {
			if r.RelevanceScore > merged[i].RelevanceScore {
				merged[i] = r
			}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, r)
	}
	return merged
}
