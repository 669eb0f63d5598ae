package extractor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/summergraph/grag/internal/llm"
	"github.com/summergraph/grag/pkg/types"
)

// Extractor pulls quintuples out of conversation text via the oracle and
// enhances them with timestamps, classification and importance scores.
type Extractor struct {
	oracle   llm.Oracle
	analyzer *Analyzer

	// advancedAnalysis routes importance through the oracle's five-factor
	// rubric instead of the rule table.
	advancedAnalysis bool

	// fallbackTimeout bounds each free-text fallback call; zero means no
	// per-call limit beyond the oracle's own.
	fallbackTimeout time.Duration

	now func() time.Time
}

// NewExtractor wires the extractor to an oracle and analyzer.
func NewExtractor(oracle llm.Oracle, analyzer *Analyzer, advancedAnalysis bool, fallbackTimeout time.Duration) *Extractor {
	return &Extractor{
		oracle:           oracle,
		analyzer:         analyzer,
		advancedAnalysis: advancedAnalysis,
		fallbackTimeout:  fallbackTimeout,
		now:              time.Now,
	}
}

// structuredExtraction matches the structured-output schema shape.
type structuredExtraction struct {
	Quintuples []struct {
		Subject     string `json:"subject"`
		SubjectType string `json:"subject_type"`
		Predicate   string `json:"predicate"`
		Object      string `json:"object"`
		ObjectType  string `json:"object_type"`
	} `json:"quintuples"`
}

// Extract runs the extraction ladder over the text with no surrounding
// conversation context.
func (e *Extractor) Extract(ctx context.Context, text, sessionID string) []*types.Quintuple {
	return e.ExtractWithContext(ctx, text, "", sessionID)
}

// ExtractWithContext runs the extraction ladder over the text: structured
// output first (one retry), then the free-text JSON prompt (two retries),
// then gives up with no quintuples. It never returns an error; an
// unreachable oracle means the turn simply yields no memories. contextText
// carries the surrounding conversation turns and feeds importance scoring;
// when empty the text itself serves as context.
func (e *Extractor) ExtractWithContext(ctx context.Context, text, contextText, sessionID string) []*types.Quintuple {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if sessionID == "" {
		sessionID = types.NewSessionID()
	}

	rows, ok := llm.FallbackChain[[][5]string](ctx, nil,
		llm.Attempt[[][5]string]{
			Name:    "structured extraction",
			Retries: 1,
			Run: func(ctx context.Context) ([][5]string, error) {
				return e.extractStructured(ctx, text)
			},
		},
		llm.Attempt[[][5]string]{
			Name:    "fallback extraction",
			Retries: 2,
			Timeout: e.fallbackTimeout,
			Run: func(ctx context.Context) ([][5]string, error) {
				return e.extractFallback(ctx, text)
			},
		},
	)
	if !ok {
		log.Printf("[extractor] extraction exhausted all attempts, no quintuples for this turn")
		return nil
	}

	return e.enhance(ctx, rows, text, contextText, sessionID)
}

func (e *Extractor) extractStructured(ctx context.Context, text string) ([][5]string, error) {
	messages := []llm.Message{
		{Role: "system", Content: llm.ExtractionSystemPrompt},
		{Role: "user", Content: llm.ExtractionUserPrompt(text)},
	}
	content, err := e.oracle.CompleteStructured(ctx, messages, llm.QuintupleSchema())
	if err != nil {
		return nil, err
	}

	var resp structuredExtraction
	if err := llm.ParseObject(content, &resp); err != nil {
		return nil, fmt.Errorf("parse structured extraction: %w", err)
	}

	rows := make([][5]string, 0, len(resp.Quintuples))
	for _, q := range resp.Quintuples {
		rows = append(rows, [5]string{q.Subject, q.SubjectType, q.Predicate, q.Object, q.ObjectType})
	}
	return rows, nil
}

func (e *Extractor) extractFallback(ctx context.Context, text string) ([][5]string, error) {
	content, err := e.oracle.Complete(ctx, []llm.Message{
		{Role: "user", Content: llm.ExtractionFallbackPrompt(text)},
	})
	if err != nil {
		return nil, err
	}

	var raw [][]string
	if err := llm.ParseArray(content, &raw); err != nil {
		return nil, fmt.Errorf("parse fallback extraction: %w", err)
	}

	var rows [][5]string
	for _, r := range raw {
		if len(r) != 5 {
			log.Printf("[extractor] dropping malformed row with %d elements", len(r))
			continue
		}
		rows = append(rows, [5]string{r[0], r[1], r[2], r[3], r[4]})
	}
	return rows, nil
}

// enhance turns raw rows into classified, scored quintuples. Rows with an
// empty subject, predicate or object are dropped.
func (e *Extractor) enhance(ctx context.Context, rows [][5]string, text, contextText, sessionID string) []*types.Quintuple {
	if contextText == "" {
		contextText = text
	}
	now := e.now()
	out := make([]*types.Quintuple, 0, len(rows))
	for _, row := range rows {
		q := &types.Quintuple{
			Subject:     strings.TrimSpace(row[0]),
			SubjectType: strings.TrimSpace(row[1]),
			Predicate:   strings.TrimSpace(row[2]),
			Object:      strings.TrimSpace(row[3]),
			ObjectType:  strings.TrimSpace(row[4]),
			SessionID:   sessionID,
		}
		if q.Subject == "" || q.Predicate == "" || q.Object == "" {
			continue
		}
		q.SetTime(now)
		q.MemoryType = e.analyzer.DetermineMemoryType(q)

		if e.advancedAnalysis {
			result := e.analyzer.AnalyzeWithLLM(ctx, q, contextText)
			q.AnalysisResult = result
			q.ImportanceScore = e.analyzer.CompositeImportance(result)
		} else {
			q.ImportanceScore = e.analyzer.CalculateBasicImportance(q, contextText)
		}
		out = append(out, q)
	}
	if len(out) > 0 {
		log.Printf("[extractor] extracted %d quintuples from %d characters", len(out), len([]rune(text)))
	}
	return out
}
