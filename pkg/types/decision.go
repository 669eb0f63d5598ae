package types

// QueryDecision is the upstream gate's verdict on whether a user question
// warrants a memory lookup, and what to look up.
type QueryDecision struct {
	ShouldQuery   bool         `json:"should_query"`
	QueryKeywords []string     `json:"query_keywords"`
	MemoryTypes   []MemoryType `json:"memory_types"`
	QueryReason   string       `json:"query_reason"`
	Confidence    float64      `json:"confidence"`
}

// GenerationDecision is the upstream gate's verdict on whether a completed
// conversation turn warrants storing a memory.
type GenerationDecision struct {
	ShouldStore     bool       `json:"should_store"`
	MemoryType      MemoryType `json:"memory_type"`
	ImportanceScore float64    `json:"importance_score"`
	KeyEntities     []string   `json:"key_entities"`
	StorageReason   string     `json:"storage_reason"`
	Confidence      float64    `json:"confidence"`
}
