package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/summergraph/grag/pkg/types"
)

// TestQuintupleUnmarshalLegacyArray verifies that a legacy 5-element string
// array is upgraded with synthesized defaults.
func TestQuintupleUnmarshalLegacyArray(t *testing.T) {
	raw := `["小明","人物","踢","足球","物品"]`

	var q types.Quintuple
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		t.Fatalf("unmarshal legacy quintuple: %v", err)
	}

	if q.Subject != "小明" || q.SubjectType != "人物" || q.Predicate != "踢" ||
		q.Object != "足球" || q.ObjectType != "物品" {
		t.Errorf("legacy fields not mapped: %+v", q)
	}
	if q.MemoryType != types.MemoryTypeFact {
		t.Errorf("expected synthesized memory_type fact, got %q", q.MemoryType)
	}
	if q.ImportanceScore != 0.5 {
		t.Errorf("expected synthesized importance 0.5, got %v", q.ImportanceScore)
	}
	if q.SessionID == "" {
		t.Error("expected synthesized session id")
	}
	if q.Time().IsZero() {
		t.Error("expected synthesized timestamp")
	}
}

// TestQuintupleUnmarshalLegacyWrongArity verifies arrays of the wrong length
// are rejected rather than silently padded.
func TestQuintupleUnmarshalLegacyWrongArity(t *testing.T) {
	var q types.Quintuple
	if err := json.Unmarshal([]byte(`["a","b","c"]`), &q); err == nil {
		t.Error("expected error for 3-element legacy entry")
	}
}

// TestQuintupleUnmarshalObject verifies the current dict format round-trips
// and missing type/importance fields get defaults.
func TestQuintupleUnmarshalObject(t *testing.T) {
	raw := `{"subject":"X","subject_type":"人物","predicate":"是","object":"Y","object_type":"人物","session_id":"s1"}`

	var q types.Quintuple
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		t.Fatalf("unmarshal quintuple: %v", err)
	}
	if q.MemoryType != types.MemoryTypeFact {
		t.Errorf("expected default memory_type fact, got %q", q.MemoryType)
	}
	if q.ImportanceScore != 0.5 {
		t.Errorf("expected default importance 0.5, got %v", q.ImportanceScore)
	}
}

// TestQuintupleTimePrefersRawTimestamp verifies the raw epoch value wins over
// the formatted string when both are present.
func TestQuintupleTimePrefersRawTimestamp(t *testing.T) {
	q := types.Quintuple{
		Timestamp:    "2020-01-01 00:00:00",
		RawTimestamp: float64(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix()),
	}

	got := q.Time()
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v from raw timestamp, got %v", want, got)
	}
}

// TestQuintupleSetTimeDualFormat verifies SetTime stamps both formats
// consistently.
func TestQuintupleSetTimeDualFormat(t *testing.T) {
	now := time.Now()
	q := types.Quintuple{}
	q.SetTime(now)

	if q.Timestamp != now.Format(types.TimestampLayout) {
		t.Errorf("formatted timestamp mismatch: %q", q.Timestamp)
	}
	diff := q.Time().Sub(now)
	if diff < -time.Second || diff > time.Second {
		t.Errorf("raw timestamp drifted by %v", diff)
	}
}

// TestQuintupleAllSessionIDs verifies the primary session id is always
// included and duplicates are collapsed.
func TestQuintupleAllSessionIDs(t *testing.T) {
	q := types.Quintuple{SessionID: "s1", SessionIDs: []string{"s1", "s2"}}

	got := q.AllSessionIDs()
	if len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Errorf("expected [s1 s2], got %v", got)
	}
}

// TestQuintupleValidateBounds verifies importance and memory-type invariants.
func TestQuintupleValidateBounds(t *testing.T) {
	q := types.Quintuple{
		Subject: "X", SubjectType: "人物", Predicate: "是",
		Object: "Y", ObjectType: "人物",
		MemoryType: types.MemoryTypeFact, ImportanceScore: 1.5,
	}
	if err := q.Validate(); err == nil {
		t.Error("expected validation error for importance > 1")
	}

	q.ImportanceScore = 0.7
	q.MemoryType = "mood"
	if err := q.Validate(); err == nil {
		t.Error("expected validation error for unknown memory type")
	}

	q.MemoryType = types.MemoryTypeEmotion
	if err := q.Validate(); err != nil {
		t.Errorf("expected valid quintuple, got %v", err)
	}
}
