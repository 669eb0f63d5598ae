// Package extractor turns conversation text into enhanced quintuples:
// oracle-driven extraction followed by importance analysis and memory-type
// classification.
package extractor

import (
	"context"
	"log"
	"sort"
	"strings"
	"unicode"

	"github.com/summergraph/grag/internal/llm"
	"github.com/summergraph/grag/pkg/types"
)

// Rule tables for heuristic importance and type classification. These are
// a scoring contract with the stored corpus; changing them rescores
// existing memories on the next merge.
var (
	importantEntityTypes = map[string]bool{
		"人物": true, "组织": true, "事件": true, "地点": true,
	}
	importantPredicates = map[string]bool{
		"是": true, "拥有": true, "完成": true, "开始": true, "结束": true,
		"创建": true, "发现": true, "结婚": true, "死亡": true,
	}
	emotionPredicates = map[string]bool{
		"喜欢": true, "讨厌": true, "爱": true, "恨": true,
		"开心": true, "难过": true, "愤怒": true, "害怕": true,
	}
	processPredicates = map[string]bool{
		"学习": true, "工作": true, "进行": true, "完成": true, "开始": true, "结束": true,
	}
)

// ImportanceWeights blends the five analysis factors into one composite
// score.
type ImportanceWeights struct {
	Factual    float64
	Emotional  float64
	Contextual float64
	Frequency  float64
	Uniqueness float64
}

// DefaultImportanceWeights returns the standard factor blend.
func DefaultImportanceWeights() ImportanceWeights {
	return ImportanceWeights{
		Factual:    0.30,
		Emotional:  0.20,
		Contextual: 0.25,
		Frequency:  0.15,
		Uniqueness: 0.10,
	}
}

// Analyzer scores and classifies quintuples. The oracle is only consulted
// for advanced analysis; the heuristic path never fails.
type Analyzer struct {
	oracle  llm.Oracle
	weights ImportanceWeights
}

// NewAnalyzer creates an analyzer with the default weight blend. The
// oracle may be nil when advanced analysis is disabled.
func NewAnalyzer(oracle llm.Oracle) *Analyzer {
	return NewAnalyzerWithWeights(oracle, DefaultImportanceWeights())
}

// NewAnalyzerWithWeights creates an analyzer with a custom factor blend.
func NewAnalyzerWithWeights(oracle llm.Oracle, weights ImportanceWeights) *Analyzer {
	return &Analyzer{oracle: oracle, weights: weights}
}

// CalculateBasicImportance scores a quintuple by rule: base 0.5, bonuses
// for significant entity types, key predicates, rich context and a
// capitalized entity name on either end, clamped to [0, 1].
func (a *Analyzer) CalculateBasicImportance(q *types.Quintuple, context string) float64 {
	score := 0.5

	if importantEntityTypes[q.SubjectType] || importantEntityTypes[q.ObjectType] {
		score += 0.2
	}
	if importantPredicates[q.Predicate] {
		score += 0.2
	}
	if len([]rune(context)) > 100 {
		score += 0.1
	}
	if startsUpper(q.Subject) || startsUpper(q.Object) {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}

// importanceResponse matches the JSON shape the importance prompt asks
// for.
type importanceResponse struct {
	Factual    float64 `json:"factual_importance"`
	Emotional  float64 `json:"emotional_importance"`
	Contextual float64 `json:"contextual_importance"`
	Frequency  float64 `json:"frequency_importance"`
	Uniqueness float64 `json:"uniqueness_importance"`
	Reasoning  string  `json:"reasoning"`
}

// AnalyzeWithLLM asks the oracle for the five-factor breakdown. Any
// failure degrades to neutral 0.5 factors so advanced analysis can never
// block storage.
func (a *Analyzer) AnalyzeWithLLM(ctx context.Context, q *types.Quintuple, contextText string) *types.AnalysisResult {
	neutral := &types.AnalysisResult{
		Factual: 0.5, Emotional: 0.5, Contextual: 0.5, Frequency: 0.5, Uniqueness: 0.5,
	}
	if a.oracle == nil {
		return neutral
	}

	prompt := llm.ImportancePrompt(q.Subject, q.SubjectType, q.Predicate, q.Object, q.ObjectType, contextText)
	content, err := a.oracle.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		log.Printf("[extractor] importance analysis failed, using neutral factors: %v", err)
		return neutral
	}

	var resp importanceResponse
	if err := llm.ParseObject(content, &resp); err != nil {
		log.Printf("[extractor] importance response unparseable, using neutral factors: %v", err)
		return neutral
	}
	return &types.AnalysisResult{
		Factual:    clamp01(resp.Factual),
		Emotional:  clamp01(resp.Emotional),
		Contextual: clamp01(resp.Contextual),
		Frequency:  clamp01(resp.Frequency),
		Uniqueness: clamp01(resp.Uniqueness),
	}
}

// CompositeImportance blends the analysis factors with the configured
// weights.
func (a *Analyzer) CompositeImportance(result *types.AnalysisResult) float64 {
	if result == nil {
		return 0.5
	}
	score := result.Factual*a.weights.Factual +
		result.Emotional*a.weights.Emotional +
		result.Contextual*a.weights.Contextual +
		result.Frequency*a.weights.Frequency +
		result.Uniqueness*a.weights.Uniqueness
	return clamp01(score)
}

// DetermineMemoryType classifies a quintuple: emotion and process by
// predicate, meta by concept type or "关于" predicates, fact otherwise.
func (a *Analyzer) DetermineMemoryType(q *types.Quintuple) types.MemoryType {
	switch {
	case emotionPredicates[q.Predicate]:
		return types.MemoryTypeEmotion
	case processPredicates[q.Predicate]:
		return types.MemoryTypeProcess
	case q.SubjectType == "概念" || q.ObjectType == "概念" || strings.Contains(q.Predicate, "关于"):
		return types.MemoryTypeMeta
	default:
		return types.MemoryTypeFact
	}
}

// ImportanceLevel buckets a score for display.
func ImportanceLevel(score float64) string {
	switch {
	case score >= 0.9:
		return "critical"
	case score >= 0.7:
		return "high"
	case score >= 0.5:
		return "medium"
	case score >= 0.3:
		return "low"
	default:
		return "minimal"
	}
}

// RouteByImportance maps a score to a storage priority tier.
func RouteByImportance(score float64) string {
	switch {
	case score >= 0.8:
		return "high_priority"
	case score >= 0.6:
		return "standard"
	case score >= 0.4:
		return "compressed"
	default:
		return "temporary"
	}
}

// FilterByImportance keeps quintuples scoring at or above the threshold.
func FilterByImportance(quintuples []*types.Quintuple, threshold float64) []*types.Quintuple {
	var out []*types.Quintuple
	for _, q := range quintuples {
		if q.ImportanceScore >= threshold {
			out = append(out, q)
		}
	}
	return out
}

// SortByImportance returns a copy sorted by importance descending.
func SortByImportance(quintuples []*types.Quintuple) []*types.Quintuple {
	out := make([]*types.Quintuple, len(quintuples))
	copy(out, quintuples)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ImportanceScore > out[j].ImportanceScore
	})
	return out
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func startsUpper(s string) bool {
	first := firstRune(s)
	return first != 0 && unicode.IsUpper(first)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
