package types

// MemoryType classifies a quintuple for storage routing and retention
// policy. Every quintuple belongs to exactly one type at any time.
type MemoryType string

const (
	MemoryTypeFact    MemoryType = "fact"
	MemoryTypeProcess MemoryType = "process"
	MemoryTypeEmotion MemoryType = "emotion"
	MemoryTypeMeta    MemoryType = "meta"
)

// AllMemoryTypes lists the closed set of memory types in routing order.
func AllMemoryTypes() []MemoryType {
	return []MemoryType{MemoryTypeFact, MemoryTypeProcess, MemoryTypeEmotion, MemoryTypeMeta}
}

// IsValid reports whether t is a known memory type.
func (t MemoryType) IsValid() bool {
	switch t {
	case MemoryTypeFact, MemoryTypeProcess, MemoryTypeEmotion, MemoryTypeMeta:
		return true
	}
	return false
}

// QueryType classifies an incoming question for strategy selection.
type QueryType string

const (
	QueryTypeFactual       QueryType = "factual"
	QueryTypeTemporal      QueryType = "temporal"
	QueryTypeRelational    QueryType = "relational"
	QueryTypeEmotional     QueryType = "emotional"
	QueryTypeProcedural    QueryType = "procedural"
	QueryTypeMeta          QueryType = "meta"
	QueryTypeComprehensive QueryType = "comprehensive"
)

// IsValid reports whether t is a known query type.
func (t QueryType) IsValid() bool {
	switch t {
	case QueryTypeFactual, QueryTypeTemporal, QueryTypeRelational,
		QueryTypeEmotional, QueryTypeProcedural, QueryTypeMeta, QueryTypeComprehensive:
		return true
	}
	return false
}

// ExtractionStrategy is the retrieval plan chosen for a classified query.
type ExtractionStrategy string

const (
	StrategyKeyword         ExtractionStrategy = "keyword_based"
	StrategySemantic        ExtractionStrategy = "semantic_based"
	StrategyTimeBased       ExtractionStrategy = "time_based"
	StrategyImportanceBased ExtractionStrategy = "importance_based"
	StrategyTypeBased       ExtractionStrategy = "type_based"
	StrategyHybrid          ExtractionStrategy = "hybrid"
)

// IsValid reports whether s is a known extraction strategy.
func (s ExtractionStrategy) IsValid() bool {
	switch s {
	case StrategyKeyword, StrategySemantic, StrategyTimeBased,
		StrategyImportanceBased, StrategyTypeBased, StrategyHybrid:
		return true
	}
	return false
}

// SearchMode selects a retrieval mode in the multi-modal query system.
type SearchMode string

const (
	SearchModeKeyword  SearchMode = "keyword"
	SearchModeSemantic SearchMode = "semantic"
	SearchModeGraph    SearchMode = "graph"
	SearchModeFuzzy    SearchMode = "fuzzy"
	SearchModeHybrid   SearchMode = "hybrid"
)

// IsValid reports whether m is a known search mode.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeKeyword, SearchModeSemantic, SearchModeGraph, SearchModeFuzzy, SearchModeHybrid:
		return true
	}
	return false
}

// SearchScope restricts which quintuple fields a search matches against.
type SearchScope string

const (
	ScopeSubject   SearchScope = "subject"
	ScopePredicate SearchScope = "predicate"
	ScopeObject    SearchScope = "object"
	ScopeFull      SearchScope = "full"
)

// IsValid reports whether s is a known search scope.
func (s SearchScope) IsValid() bool {
	switch s {
	case ScopeSubject, ScopePredicate, ScopeObject, ScopeFull:
		return true
	}
	return false
}

// TaskState is the lifecycle state of a task-manager unit of work.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCancelled TaskState = "cancelled"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}
