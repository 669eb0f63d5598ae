package query

import (
	"testing"

	"github.com/summergraph/grag/pkg/types"
)

func TestAnalyzeQuery_StrategySelection(t *testing.T) {
	cases := []struct {
		question     string
		wantType     types.QueryType
		wantStrategy types.ExtractionStrategy
	}{
		{"最近做了什么？", types.QueryTypeTemporal, types.StrategyTimeBased},
		{"你喜欢什么？", types.QueryTypeEmotional, types.StrategyTypeBased},
		{"如何学习英语？", types.QueryTypeProcedural, types.StrategyTypeBased},
		{"关于记忆系统", types.QueryTypeMeta, types.StrategySemantic},
	}
	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			analysis := AnalyzeQuery(tc.question)
			if analysis.QueryType != tc.wantType {
				t.Errorf("query type: want %s, got %s", tc.wantType, analysis.QueryType)
			}
			if analysis.Strategy != tc.wantStrategy {
				t.Errorf("strategy: want %s, got %s", tc.wantStrategy, analysis.Strategy)
			}
		})
	}
}

func TestAnalyzeQuery_TimeConstraintForcesHybrid(t *testing.T) {
	// Factual classification plus a parsed time expression picks hybrid.
	analysis := AnalyzeQuery("3小时前 小明 在 学校 老师 那里")
	if analysis.QueryType != types.QueryTypeFactual {
		t.Fatalf("expected factual, got %s", analysis.QueryType)
	}
	if analysis.TimeConstraint == nil {
		t.Fatal("expected a time constraint")
	}
	if analysis.Strategy != types.StrategyHybrid {
		t.Errorf("time-constrained factual query should be hybrid, got %s", analysis.Strategy)
	}
}

func TestAnalyzeQuery_FewKeywordsGoSemantic(t *testing.T) {
	analysis := AnalyzeQuery("小明 足球")
	if analysis.Strategy != types.StrategySemantic {
		t.Errorf("two keywords should pick semantic, got %s", analysis.Strategy)
	}

	analysis = AnalyzeQuery("小明 足球 公园 学校")
	if analysis.Strategy != types.StrategyKeyword {
		t.Errorf("many keywords should pick keyword_based, got %s", analysis.Strategy)
	}
}

func TestExtractKeywords_DropsStopWordsAndDuplicates(t *testing.T) {
	got := ExtractKeywords("小明 的 足球 和 足球")
	if len(got) != 2 {
		t.Fatalf("want 2 keywords, got %v", got)
	}
	if got[0] != "小明" || got[1] != "足球" {
		t.Errorf("unexpected keywords %v", got)
	}
}

func TestExtractKeywords_LowercasesAndStripsPunctuation(t *testing.T) {
	got := ExtractKeywords("Alice, Bob!")
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("unexpected keywords %v", got)
	}
}

func TestExtractTimeConstraint_HoursAgo(t *testing.T) {
	analysis := AnalyzeQuery("3小时前发生了什么")
	if analysis.TimeConstraint == nil {
		t.Fatal("expected a time constraint")
	}
	if analysis.TimeConstraint.Kind != ConstraintHoursAgo || analysis.TimeConstraint.Hours != 3 {
		t.Errorf("unexpected constraint %+v", analysis.TimeConstraint)
	}
	if analysis.TimeConstraint.WindowHours() != 3 {
		t.Errorf("window: want 3, got %d", analysis.TimeConstraint.WindowHours())
	}
}

func TestExtractImportanceThreshold(t *testing.T) {
	cases := map[string]float64{
		"重要的事情":  0.8,
		"详细说明一下": 0.6,
		"大概讲讲":   0.3,
		"小明是谁":   0.5,
	}
	for question, want := range cases {
		if got := AnalyzeQuery(question).ImportanceThreshold; got != want {
			t.Errorf("%q: want %v, got %v", question, want, got)
		}
	}
}

func TestInferMemoryTypes(t *testing.T) {
	analysis := AnalyzeQuery("你喜欢什么？")
	hasEmotion := false
	for _, mt := range analysis.MemoryTypes {
		if mt == types.MemoryTypeEmotion {
			hasEmotion = true
		}
	}
	if !hasEmotion {
		t.Errorf("emotional question must include emotion memories, got %v", analysis.MemoryTypes)
	}
	if analysis.MemoryTypes[0] != types.MemoryTypeFact {
		t.Error("fact memories are always included")
	}
}

func TestExtractEntities(t *testing.T) {
	got := ExtractEntities("小明 and Alice went out")
	want := map[string]bool{"小明": true, "Alice": true}
	for _, e := range got {
		if !want[e] {
			t.Errorf("unexpected entity %q", e)
		}
		delete(want, e)
	}
	if len(want) != 0 {
		t.Errorf("missing entities: %v", want)
	}
}

func TestExpandKeywords_AddsSynonyms(t *testing.T) {
	got := ExpandKeywords([]string{"学习"})
	if len(got) != 4 {
		t.Errorf("学习 expands to itself plus 3 synonyms, got %v", got)
	}
	if got[0] != "学习" {
		t.Errorf("original keyword must come first, got %v", got)
	}
}

func TestAnalysisConfidence_Bounded(t *testing.T) {
	analysis := AnalyzeQuery("最近 小明 Alice 足球 公园")
	if analysis.Confidence < 0.5 || analysis.Confidence > 1.0 {
		t.Errorf("confidence %v out of range", analysis.Confidence)
	}
}
