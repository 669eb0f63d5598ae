// Package decision gates the memory pipeline: whether a question warrants
// a memory lookup, and whether a finished turn is worth storing. Decisions
// always resolve; every failure degrades to a rule default so the chat
// turn never blocks on the oracle.
package decision

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/summergraph/grag/internal/llm"
	"github.com/summergraph/grag/pkg/types"
)

// Maker runs the structured → free-text-JSON → rule-default decision
// ladder.
type Maker struct {
	oracle  llm.Oracle
	enabled bool
}

// NewMaker creates the gate. A disabled maker answers "no" to everything
// without touching the oracle.
func NewMaker(oracle llm.Oracle, enabled bool) *Maker {
	return &Maker{oracle: oracle, enabled: enabled}
}

// Enabled reports whether decisions consult the oracle at all.
func (m *Maker) Enabled() bool {
	return m.enabled
}

// DecideQuery determines whether answering the question needs stored
// memories, and with which keywords and types.
func (m *Maker) DecideQuery(ctx context.Context, question string) types.QueryDecision {
	if !m.enabled {
		return types.QueryDecision{
			QueryReason: "memory decisions disabled",
		}
	}

	def := defaultQueryDecision(question)
	result, ok := llm.FallbackChain(ctx, def,
		llm.Attempt[types.QueryDecision]{
			Name:    "structured query decision",
			Retries: 1,
			Run: func(ctx context.Context) (types.QueryDecision, error) {
				return m.queryStructured(ctx, question)
			},
		},
		llm.Attempt[types.QueryDecision]{
			Name:    "fallback query decision",
			Retries: 2,
			Run: func(ctx context.Context) (types.QueryDecision, error) {
				return m.queryFallback(ctx, question)
			},
		},
	)
	if !ok {
		log.Printf("[decision] query gate degraded to rule default (should_query=%v)", def.ShouldQuery)
	}
	return result
}

// DecideGeneration determines whether the finished turn should be stored
// as memory.
func (m *Maker) DecideGeneration(ctx context.Context, question, answer string) types.GenerationDecision {
	if !m.enabled {
		return types.GenerationDecision{
			MemoryType:    types.MemoryTypeFact,
			StorageReason: "memory decisions disabled",
		}
	}

	def := defaultGenerationDecision(question, answer)
	result, ok := llm.FallbackChain(ctx, def,
		llm.Attempt[types.GenerationDecision]{
			Name:    "structured generation decision",
			Retries: 1,
			Run: func(ctx context.Context) (types.GenerationDecision, error) {
				return m.generationStructured(ctx, question, answer)
			},
		},
		llm.Attempt[types.GenerationDecision]{
			Name:    "fallback generation decision",
			Retries: 2,
			Run: func(ctx context.Context) (types.GenerationDecision, error) {
				return m.generationFallback(ctx, question, answer)
			},
		},
	)
	if !ok {
		log.Printf("[decision] generation gate degraded to rule default (should_store=%v)", def.ShouldStore)
	}
	return result
}

func (m *Maker) queryStructured(ctx context.Context, question string) (types.QueryDecision, error) {
	content, err := m.oracle.CompleteStructured(ctx, []llm.Message{
		{Role: "system", Content: llm.QueryDecisionSystemPrompt},
		{Role: "user", Content: llm.QueryDecisionUserPrompt(question)},
	}, llm.QueryDecisionSchema())
	if err != nil {
		return types.QueryDecision{}, err
	}
	return parseQueryDecision(content)
}

func (m *Maker) queryFallback(ctx context.Context, question string) (types.QueryDecision, error) {
	content, err := m.oracle.Complete(ctx, []llm.Message{
		{Role: "user", Content: llm.QueryDecisionFallbackPrompt(question)},
	})
	if err != nil {
		return types.QueryDecision{}, err
	}
	return parseQueryDecision(content)
}

func (m *Maker) generationStructured(ctx context.Context, question, answer string) (types.GenerationDecision, error) {
	content, err := m.oracle.CompleteStructured(ctx, []llm.Message{
		{Role: "system", Content: llm.GenerationDecisionSystemPrompt},
		{Role: "user", Content: llm.GenerationDecisionUserPrompt(question, answer)},
	}, llm.GenerationDecisionSchema())
	if err != nil {
		return types.GenerationDecision{}, err
	}
	return parseGenerationDecision(content)
}

func (m *Maker) generationFallback(ctx context.Context, question, answer string) (types.GenerationDecision, error) {
	content, err := m.oracle.Complete(ctx, []llm.Message{
		{Role: "user", Content: llm.GenerationDecisionFallbackPrompt(question, answer)},
	})
	if err != nil {
		return types.GenerationDecision{}, err
	}
	return parseGenerationDecision(content)
}

func parseQueryDecision(content string) (types.QueryDecision, error) {
	var d types.QueryDecision
	if err := llm.ParseObject(content, &d); err != nil {
		return types.QueryDecision{}, fmt.Errorf("parse query decision: %w", err)
	}
	d.MemoryTypes = validMemoryTypes(d.MemoryTypes)
	return d, nil
}

func parseGenerationDecision(content string) (types.GenerationDecision, error) {
	var d types.GenerationDecision
	if err := llm.ParseObject(content, &d); err != nil {
		return types.GenerationDecision{}, fmt.Errorf("parse generation decision: %w", err)
	}
	if !d.MemoryType.IsValid() {
		d.MemoryType = types.MemoryTypeFact
	}
	if d.ImportanceScore < 0 {
		d.ImportanceScore = 0
	}
	if d.ImportanceScore > 1 {
		d.ImportanceScore = 1
	}
	return d, nil
}

// defaultQueryDecision is the terminal rule: query when the question is
// long enough to carry content, keyed on its leading characters.
func defaultQueryDecision(question string) types.QueryDecision {
	runes := []rune(question)
	keyword := question
	if len(runes) > 10 {
		keyword = string(runes[:10])
	}
	return types.QueryDecision{
		ShouldQuery:   len(runes) > 10,
		QueryKeywords: []string{keyword},
		MemoryTypes:   []types.MemoryType{types.MemoryTypeFact},
		QueryReason:   "default decision",
		Confidence:    0.5,
	}
}

// defaultGenerationDecision is the terminal rule: store substantive turns
// as fact memories at neutral importance.
func defaultGenerationDecision(question, answer string) types.GenerationDecision {
	qRunes := []rune(question)
	entity := question
	if len(qRunes) > 10 {
		entity = string(qRunes[:10])
	}
	return types.GenerationDecision{
		ShouldStore:     len(qRunes) > 5 && len([]rune(answer)) > 10,
		MemoryType:      types.MemoryTypeFact,
		ImportanceScore: 0.5,
		KeyEntities:     []string{strings.TrimSpace(entity)},
		StorageReason:   "default decision",
		Confidence:      0.5,
	}
}

func validMemoryTypes(memoryTypes []types.MemoryType) []types.MemoryType {
	var out []types.MemoryType
	for _, t := range memoryTypes {
		if t.IsValid() {
			out = append(out, t)
		}
	}
	return out
}
