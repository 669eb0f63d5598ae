package query

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/summergraph/grag/internal/storage"
	"github.com/summergraph/grag/internal/timeline"
	"github.com/summergraph/grag/pkg/types"
)

// QuintupleSource is the keyword-filtered query surface; the graph mirror
// and the master store both satisfy it.
type QuintupleSource interface {
	QueryByKeywords(ctx context.Context, keywords []string, filter storage.QuintupleFilter) ([]*types.Quintuple, error)
}

// TypedSource retrieves memories by type from the typed store.
type TypedSource interface {
	GetByTypes(memoryTypes []types.MemoryType, limit int, minImportance float64) ([]*types.Quintuple, error)
}

// ExtractionResult is a ranked retrieval outcome.
type ExtractionResult struct {
	Quintuples      []*types.Quintuple
	RelevanceScores []float64
	Analysis        QueryAnalysis
	TotalFound      int
	ProcessingTime  time.Duration
}

// IntelligentExtractor classifies a question and runs the matching
// extraction strategy against the stores.
type IntelligentExtractor struct {
	source   QuintupleSource
	typed    TypedSource
	timeline *timeline.Manager

	mu             sync.Mutex
	queriesByType  map[types.QueryType]int
	strategyCounts map[types.ExtractionStrategy]int
}

// NewIntelligentExtractor wires the extractor to its retrieval backends.
func NewIntelligentExtractor(source QuintupleSource, typed TypedSource, tl *timeline.Manager) *IntelligentExtractor {
	if tl == nil {
		tl = timeline.NewManager()
	}
	return &IntelligentExtractor{
		source:         source,
		typed:          typed,
		timeline:       tl,
		queriesByType:  make(map[types.QueryType]int),
		strategyCounts: make(map[types.ExtractionStrategy]int),
	}
}

// ExtractMemories analyzes the question, runs the selected strategy,
// scores relevance, and returns at most maxResults ranked quintuples.
func (e *IntelligentExtractor) ExtractMemories(ctx context.Context, question string, maxResults int) (*ExtractionResult, error) {
	start := time.Now()
	analysis := AnalyzeQuery(question)
	log.Printf("[query] %q classified as %s, strategy %s", question, analysis.QueryType, analysis.Strategy)

	e.mu.Lock()
	e.queriesByType[analysis.QueryType]++
	e.strategyCounts[analysis.Strategy]++
	e.mu.Unlock()

	quintuples, err := e.dispatch(ctx, analysis)
	if err != nil {
		return nil, err
	}
	quintuples = dedupByTriple(quintuples)

	scores := e.relevanceScores(quintuples, analysis)
	ranked := rankByScore(quintuples, scores)
	totalFound := len(ranked)
	if maxResults > 0 && len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	result := &ExtractionResult{
		Quintuples:      make([]*types.Quintuple, len(ranked)),
		RelevanceScores: make([]float64, len(ranked)),
		Analysis:        analysis,
		TotalFound:      totalFound,
		ProcessingTime:  time.Since(start),
	}
	for i, r := range ranked {
		result.Quintuples[i] = r.quintuple
		result.RelevanceScores[i] = r.score
	}
	return result, nil
}

// dispatch runs the strategy. The switch is exhaustive over the
// extraction strategies.
func (e *IntelligentExtractor) dispatch(ctx context.Context, analysis QueryAnalysis) ([]*types.Quintuple, error) {
	filter := storage.QuintupleFilter{
		MemoryTypes:         analysis.MemoryTypes,
		ImportanceThreshold: analysis.ImportanceThreshold,
	}

	switch analysis.Strategy {
	case types.StrategyKeyword:
		return e.source.QueryByKeywords(ctx, analysis.Keywords, filter)

	case types.StrategySemantic:
		expanded := ExpandKeywords(analysis.Keywords)
		var all []*types.Quintuple
		for _, kw := range expanded {
			batch, err := e.source.QueryByKeywords(ctx, []string{kw}, filter)
			if err != nil {
				return nil, err
			}
			all = append(all, batch...)
		}
		return all, nil

	case types.StrategyTimeBased:
		window := 24 * time.Hour
		if analysis.TimeConstraint != nil {
			window = time.Duration(analysis.TimeConstraint.WindowHours()) * time.Hour
		}
		filter.TimeWindow = &window
		batch, err := e.source.QueryByKeywords(ctx, analysis.Keywords, filter)
		if err != nil {
			return nil, err
		}
		return e.timeline.SortByTime(batch, false), nil

	case types.StrategyImportanceBased:
		batch, err := e.source.QueryByKeywords(ctx, analysis.Keywords, filter)
		if err != nil {
			return nil, err
		}
		sorted := make([]*types.Quintuple, len(batch))
		copy(sorted, batch)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ImportanceScore > sorted[j].ImportanceScore
		})
		return sorted, nil

	case types.StrategyTypeBased:
		return e.typed.GetByTypes(analysis.MemoryTypes, 0, analysis.ImportanceThreshold)

	case types.StrategyHybrid:
		keywordResults, err := e.source.QueryByKeywords(ctx, analysis.Keywords, filter)
		if err != nil {
			return nil, err
		}
		typeResults, err := e.typed.GetByTypes(analysis.MemoryTypes, 0, analysis.ImportanceThreshold)
		if err != nil {
			return nil, err
		}
		return append(keywordResults, typeResults...), nil

	default:
		return nil, nil
	}
}

// relevanceScores blends keyword overlap (0.4), importance (0.3) and,
// only for time-constrained queries, decay (0.3). Without a time
// constraint the decay weight is simply absent, not redistributed.
func (e *IntelligentExtractor) relevanceScores(quintuples []*types.Quintuple, analysis QueryAnalysis) []float64 {
	scores := make([]float64, len(quintuples))
	for i, q := range quintuples {
		score := keywordFraction(q, analysis.Keywords)*0.4 + q.ImportanceScore*0.3
		if analysis.TimeConstraint != nil {
			score += e.timeline.QuintupleDecayFactor(q) * 0.3
		}
		if score > 1.0 {
			score = 1.0
		}
		scores[i] = score
	}
	return scores
}

// QueryStatistics summarizes the extractor's query history.
type QueryStatistics struct {
	TotalQueries int                              `json:"total_queries"`
	ByQueryType  map[types.QueryType]int          `json:"by_query_type"`
	ByStrategy   map[types.ExtractionStrategy]int `json:"by_strategy"`
}

// Statistics returns counters over the classified queries so far.
func (e *IntelligentExtractor) Statistics() QueryStatistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := QueryStatistics{
		ByQueryType: make(map[types.QueryType]int, len(e.queriesByType)),
		ByStrategy:  make(map[types.ExtractionStrategy]int, len(e.strategyCounts)),
	}
	for t, n := range e.queriesByType {
		stats.ByQueryType[t] = n
		stats.TotalQueries += n
	}
	for s, n := range e.strategyCounts {
		stats.ByStrategy[s] = n
	}
	return stats
}

type scored struct {
	quintuple *types.Quintuple
	score     float64
}

func rankByScore(quintuples []*types.Quintuple, scores []float64) []scored {
	ranked := make([]scored, len(quintuples))
	for i := range quintuples {
		ranked[i] = scored{quintuple: quintuples[i], score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

// dedupByTriple keeps the first record per (subject, predicate, object).
func dedupByTriple(quintuples []*types.Quintuple) []*types.Quintuple {
	seen := map[string]bool{}
	var out []*types.Quintuple
	for _, q := range quintuples {
		key := q.IndexKey()
		if !seen[key] {
			seen[key] = true
			out = append(out, q)
		}
	}
	return out
}

func keywordFraction(q *types.Quintuple, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(q.Subject, kw) ||
			strings.Contains(q.Predicate, kw) ||
			strings.Contains(q.Object, kw) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}
