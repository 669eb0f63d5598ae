package llm

import (
	"testing"
)

func TestExtractJSONObject_CodeFences(t *testing.T) {
	input := "```json\n{\"should_query\": true, \"confidence\": 0.8}\n```"

	got := ExtractJSONObject(input)
	want := `{"should_query": true, "confidence": 0.8}`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestExtractJSONObject_SurroundingProse(t *testing.T) {
	input := `以下是我的分析结果：{"a": 1, "b": {"c": 2}} 希望对你有帮助。`

	got := ExtractJSONObject(input)
	want := `{"a": 1, "b": {"c": 2}}`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestExtractJSONObject_BracesInsideStrings(t *testing.T) {
	input := `{"reason": "包含 } 和 { 的字符串", "ok": true}`

	got := ExtractJSONObject(input)
	if got != input {
		t.Errorf("braces inside string broke extraction: %q", got)
	}
}

func TestExtractJSONArray_NestedArrays(t *testing.T) {
	input := "提取结果：[[\"小明\", \"人物\", \"踢\", \"足球\", \"物品\"], [\"小明\", \"人物\", \"在\", \"公园\", \"地点\"]]"

	got := ExtractJSONArray(input)
	want := `[["小明", "人物", "踢", "足球", "物品"], ["小明", "人物", "在", "公园", "地点"]]`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParseArray_LegacyQuintupleList(t *testing.T) {
	input := "```json\n[[\"我\", \"人物\", \"喜欢吃\", \"苹果\", \"物品\"]]\n```"

	var rows [][]string
	if err := ParseArray(input, &rows); err != nil {
		t.Fatalf("parse array: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != 5 || rows[0][3] != "苹果" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestParseObject_RepairsTrailingComma(t *testing.T) {
	input := `{"should_store": true, "confidence": 0.7,}`

	var out struct {
		ShouldStore bool    `json:"should_store"`
		Confidence  float64 `json:"confidence"`
	}
	if err := ParseObject(input, &out); err != nil {
		t.Fatalf("parse object with trailing comma: %v", err)
	}
	if !out.ShouldStore || out.Confidence != 0.7 {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestParseObject_NoJSON(t *testing.T) {
	var out map[string]interface{}
	if err := ParseObject("抱歉，我无法处理这个请求。", &out); err == nil {
		t.Error("expected error for response without JSON")
	}
}
