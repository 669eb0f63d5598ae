package entity

import (
	"strings"
	"testing"
)

func newDisambiguator(t *testing.T) *Disambiguator {
	t.Helper()
	d, err := NewDisambiguator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDisambiguate_CreatesNewEntity(t *testing.T) {
	d := newDisambiguator(t)

	e, err := d.Disambiguate("小明", "人物", "小明在学校踢足球", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(e.ID, "entity_") || len(e.ID) != len("entity_")+12 {
		t.Errorf("id must be entity_ plus 12 hash characters, got %q", e.ID)
	}
	if e.Frequency != 1 || e.Confidence != 0.8 {
		t.Errorf("new entity stats: freq %d conf %v", e.Frequency, e.Confidence)
	}
	if len(e.Contexts) != 1 {
		t.Errorf("context must be recorded, got %v", e.Contexts)
	}
	if e.FirstSeen.IsZero() || e.LastSeen.IsZero() {
		t.Error("sighting timestamps must be set")
	}
}

func TestDisambiguate_MergesSameMention(t *testing.T) {
	d := newDisambiguator(t)

	first, err := d.Disambiguate("小明", "人物", "小明在学校踢足球", 0.6)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Disambiguate("小明", "人物", "小明今天去了公园", 0.9)
	if err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Fatalf("same name and type must resolve to the same entity: %s vs %s", first.ID, second.ID)
	}
	if second.Frequency != 2 {
		t.Errorf("frequency must grow on re-sighting, got %d", second.Frequency)
	}
	if second.Confidence != 0.9 {
		t.Errorf("confidence keeps the max, got %v", second.Confidence)
	}
	if len(second.Contexts) != 2 {
		t.Errorf("new context must be appended, got %v", second.Contexts)
	}
}

func TestDisambiguate_RepeatedContextNotDuplicated(t *testing.T) {
	d := newDisambiguator(t)

	ctx := "小明在学校踢足球"
	if _, err := d.Disambiguate("小明", "人物", ctx, 0.6); err != nil {
		t.Fatal(err)
	}
	e, err := d.Disambiguate("小明", "人物", ctx, 0.6)
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Contexts) != 1 {
		t.Errorf("identical context must not be appended twice, got %v", e.Contexts)
	}
}

func TestDisambiguate_DifferentTypeCreatesDistinctEntity(t *testing.T) {
	d := newDisambiguator(t)

	person, err := d.Disambiguate("苹果", "组织", "苹果发布了新手机", 0.7)
	if err != nil {
		t.Fatal(err)
	}
	fruit, err := d.Disambiguate("苹果", "物品", "我早上吃了一个苹果", 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if person.ID == fruit.ID {
		t.Error("name match alone (0.5) is below the merge threshold; distinct types must stay distinct")
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name               string
		nameA, nameB       string
		typeA, typeB       string
		contextA, contextB string
		min, max           float64
	}{
		{"exact name and type", "小明", "小明", "人物", "人物", "", "", 0.8, 0.8},
		{"containment name", "小明", "王小明", "人物", "人物", "", "", 0.6, 0.6},
		{"type mismatch", "小明", "小明", "人物", "地点", "", "", 0.5, 0.5},
		{"full overlap context", "小明", "小明", "人物", "人物", "踢足球 学校", "踢足球 学校", 1.0, 1.0},
		{"unrelated", "小明", "王芳", "人物", "地点", "", "", 0.0, 0.0},
	}
	for _, tc := range cases {
		got := similarity(tc.nameA, tc.nameB, tc.typeA, tc.typeB, tc.contextA, tc.contextB)
		if got < tc.min-1e-9 || got > tc.max+1e-9 {
			t.Errorf("%s: want [%v, %v], got %v", tc.name, tc.min, tc.max, got)
		}
	}
}

func TestFindByName_MatchesAliases(t *testing.T) {
	d := newDisambiguator(t)

	e, err := d.Disambiguate("小明", "人物", "小明在学校", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.AddAlias(e.ID, "明明"); err != nil {
		t.Fatal(err)
	}

	byAlias := d.FindByName("明明")
	if len(byAlias) != 1 || byAlias[0].ID != e.ID {
		t.Errorf("alias lookup failed: %v", byAlias)
	}
	byName := d.FindByName("小明")
	if len(byName) != 1 {
		t.Errorf("name lookup failed: %v", byName)
	}
	if got := d.FindByName("不存在"); len(got) != 0 {
		t.Errorf("unknown name must return nothing, got %v", got)
	}
}

func TestAddAlias_UnknownEntity(t *testing.T) {
	d := newDisambiguator(t)
	if err := d.AddAlias("entity_missing", "x"); err == nil {
		t.Error("aliasing an unknown entity must fail")
	}
}

func TestRelate_IsSymmetric(t *testing.T) {
	d := newDisambiguator(t)

	a, _ := d.Disambiguate("小明", "人物", "小明踢足球", 0.8)
	b, _ := d.Disambiguate("足球", "物品", "足球是运动器材", 0.8)
	if err := d.Relate(a.ID, b.ID); err != nil {
		t.Fatal(err)
	}

	gotA, _ := d.Get(a.ID)
	gotB, _ := d.Get(b.ID)
	if len(gotA.RelatedEntities) != 1 || gotA.RelatedEntities[0] != b.ID {
		t.Errorf("a must relate to b, got %v", gotA.RelatedEntities)
	}
	if len(gotB.RelatedEntities) != 1 || gotB.RelatedEntities[0] != a.ID {
		t.Errorf("b must relate to a, got %v", gotB.RelatedEntities)
	}

	// Relating again must not duplicate.
	if err := d.Relate(a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	gotA, _ = d.Get(a.ID)
	if len(gotA.RelatedEntities) != 1 {
		t.Errorf("relation must be idempotent, got %v", gotA.RelatedEntities)
	}
}

func TestCleanup_DropsLowQualityEntities(t *testing.T) {
	d := newDisambiguator(t)

	keep, _ := d.Disambiguate("小明", "人物", "小明在学校", 0.9)
	_, _ = d.Disambiguate("小明", "人物", "小明去了公园", 0.9) // freq 2
	weak, _ := d.Disambiguate("路人", "人物", "路人经过了", 0.2)

	removed, err := d.Cleanup(2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, ok := d.Get(weak.ID); ok {
		t.Error("low-frequency low-confidence entity must be removed")
	}
	if _, ok := d.Get(keep.ID); !ok {
		t.Error("frequent high-confidence entity must survive")
	}
	if got := d.FindByName("路人"); len(got) != 0 {
		t.Error("indexes must not resolve a removed entity")
	}
}

func TestStatistics(t *testing.T) {
	d := newDisambiguator(t)

	a, _ := d.Disambiguate("小明", "人物", "小明在学校", 0.8)
	_, _ = d.Disambiguate("北京", "地点", "北京是首都", 0.6)
	_ = d.AddAlias(a.ID, "明明")

	stats := d.Statistics()
	if stats.TotalEntities != 2 {
		t.Errorf("total: want 2, got %d", stats.TotalEntities)
	}
	if stats.TypeDistribution["人物"] != 1 || stats.TypeDistribution["地点"] != 1 {
		t.Errorf("type distribution: %v", stats.TypeDistribution)
	}
	if stats.AverageConfidence != 0.7 {
		t.Errorf("average confidence: want 0.7, got %v", stats.AverageConfidence)
	}
	if stats.WithAliases != 1 {
		t.Errorf("alias count: want 1, got %d", stats.WithAliases)
	}
}

func TestPersistence_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisambiguator(dir)
	if err != nil {
		t.Fatal(err)
	}
	e, err := d.Disambiguate("小明", "人物", "小明在学校踢足球", 0.8)
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewDisambiguator(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Get(e.ID)
	if !ok {
		t.Fatal("entity missing after reload")
	}
	if got.Name != "小明" || got.Frequency != 1 {
		t.Errorf("reloaded entity corrupted: %+v", got)
	}

	// Re-sighting after reload still merges via the rebuilt indexes.
	again, err := reloaded.Disambiguate("小明", "人物", "小明在学校踢足球", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != e.ID {
		t.Error("reload must preserve disambiguation identity")
	}
}
