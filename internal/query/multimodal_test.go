package query

import (
	"context"
	"testing"
	"time"

	"github.com/summergraph/grag/pkg/types"
)

func TestSearch_KeywordModeScoresByOverlap(t *testing.T) {
	full := corpusQuintuple("小明", "踢", "足球", types.MemoryTypeFact, 0.6, time.Hour)
	partial := corpusQuintuple("小明", "是", "学生", types.MemoryTypeFact, 0.6, time.Hour)
	m := NewMultiModal(&fakeSource{corpus: []*types.Quintuple{full, partial}}, &fakeTyped{})

	results, err := m.Search(context.Background(), "小明 足球", Options{
		Modes:        []types.SearchMode{types.SearchModeKeyword},
		MaxResults:   10,
		MinRelevance: 0.3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}
	if results[0].Quintuple != full {
		t.Error("record matching both keywords must rank first")
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("ranks not assigned: %d, %d", results[0].Rank, results[1].Rank)
	}
	if results[0].SearchMode != types.SearchModeKeyword {
		t.Errorf("unexpected mode %s", results[0].SearchMode)
	}
}

func TestSearch_ScopeRestrictsMatching(t *testing.T) {
	q := corpusQuintuple("小明", "踢", "足球", types.MemoryTypeFact, 0.6, time.Hour)
	m := NewMultiModal(&fakeSource{corpus: []*types.Quintuple{q}}, &fakeTyped{})

	opts := Options{
		Modes:        []types.SearchMode{types.SearchModeKeyword},
		Scope:        types.ScopeSubject,
		MaxResults:   10,
		MinRelevance: 0.3,
	}

	results, err := m.Search(context.Background(), "足球", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Error("subject-only scope must not match an object keyword")
	}

	results, err = m.Search(context.Background(), "小明", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Error("subject-only scope must match a subject keyword")
	}
}

func TestSearch_FuzzyMatchesCharacterOverlap(t *testing.T) {
	exact := corpusQuintuple("足球", "是", "运动", types.MemoryTypeFact, 0.6, time.Hour)
	near := corpusQuintuple("足球场", "是", "场地", types.MemoryTypeFact, 0.6, time.Hour)
	unrelated := corpusQuintuple("王芳", "学习", "英语", types.MemoryTypeFact, 0.6, time.Hour)
	typed := &fakeTyped{byType: map[types.MemoryType][]*types.Quintuple{
		types.MemoryTypeFact: {exact, near, unrelated},
	}}
	m := NewMultiModal(&fakeSource{}, typed)

	results, err := m.Search(context.Background(), "足球", Options{
		Modes:          []types.SearchMode{types.SearchModeFuzzy},
		MaxResults:     10,
		FuzzyThreshold: 0.6,
	})
	if err != nil {
		t.Fatal(err)
	}

	found := map[string]bool{}
	for _, r := range results {
		found[r.Quintuple.Subject] = true
		if r.MatchType != "fuzzy" {
			t.Errorf("unexpected match type %s", r.MatchType)
		}
	}
	if !found["足球"] || !found["足球场"] {
		t.Errorf("fuzzy search should match near spellings, got %v", found)
	}
	if found["王芳"] {
		t.Error("unrelated record must not pass the overlap threshold")
	}
}

func TestCharOverlap(t *testing.T) {
	if got := charOverlap("足球", "足球"); got != 1.0 {
		t.Errorf("identical: want 1.0, got %v", got)
	}
	// 2 common runes over max length 3.
	if got := charOverlap("足球", "足球场"); got < 0.66 || got > 0.67 {
		t.Errorf("overlap: want ~2/3, got %v", got)
	}
	if got := charOverlap("足球", "英语"); got != 0.0 {
		t.Errorf("disjoint: want 0, got %v", got)
	}
}

func TestFuzzyPatterns(t *testing.T) {
	patterns := FuzzyPatterns([]string{"足球", "x"})
	if len(patterns) != 3 {
		t.Fatalf("single-rune keywords are skipped, got %v", patterns)
	}
	if patterns[0] != "*足球*" || patterns[1] != "足球*" || patterns[2] != "*足球" {
		t.Errorf("unexpected patterns %v", patterns)
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, text string
		want          bool
	}{
		{"*足球*", "小明踢足球啊", true},
		{"足球*", "足球场", true},
		{"足球*", "踢足球", false},
		{"*足球", "踢足球", true},
		{"*足球", "足球场", false},
		{"足球", "踢足球啊", true},
	}
	for _, tc := range cases {
		if got := matchPattern(tc.pattern, tc.text); got != tc.want {
			t.Errorf("matchPattern(%q, %q): want %v, got %v", tc.pattern, tc.text, got, tc.want)
		}
	}
}

func TestSearch_HybridDedupsKeepingHigherScore(t *testing.T) {
	q := corpusQuintuple("小明", "研究", "数学", types.MemoryTypeFact, 0.6, time.Hour)
	m := NewMultiModal(&fakeSource{corpus: []*types.Quintuple{q}}, &fakeTyped{})

	// 研究 hits directly via keyword and again via 学习's synonym
	// expansion; the merged result keeps one entry with the higher score.
	results, err := m.Search(context.Background(), "研究 数学", Options{
		Modes:        []types.SearchMode{types.SearchModeHybrid},
		MaxResults:   10,
		MinRelevance: 0.3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 deduplicated result, got %d", len(results))
	}
	if results[0].MatchType != "keyword" {
		t.Errorf("direct keyword hit (score 1.0) must win over the semantic hit (0.8), got %s", results[0].MatchType)
	}
}

func TestSearch_GraphModeUsesEntities(t *testing.T) {
	q := corpusQuintuple("小明", "踢", "足球", types.MemoryTypeFact, 0.6, time.Hour)
	source := &fakeSource{corpus: []*types.Quintuple{q}}
	m := NewMultiModal(source, &fakeTyped{})

	results, err := m.Search(context.Background(), "小明", Options{
		Modes:        []types.SearchMode{types.SearchModeGraph},
		MaxResults:   10,
		MinRelevance: 0.3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 graph hit, got %d", len(results))
	}
	if results[0].RelevanceScore != 1.0 {
		t.Errorf("single entity in subject scores 1.0, got %v", results[0].RelevanceScore)
	}
}

func TestSearch_DefaultsWhenNoModesGiven(t *testing.T) {
	q := corpusQuintuple("小明", "踢", "足球", types.MemoryTypeFact, 0.6, time.Hour)
	m := NewMultiModal(&fakeSource{corpus: []*types.Quintuple{q}}, &fakeTyped{})

	results, err := m.Search(context.Background(), "小明 足球", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Error("zero-value options must fall back to the keyword+semantic defaults")
	}
}
