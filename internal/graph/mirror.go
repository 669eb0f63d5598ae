package graph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/summergraph/grag/internal/config"
	"github.com/summergraph/grag/internal/storage"
	"github.com/summergraph/grag/pkg/types"
)

// resultsPerKeyword caps graph hits per keyword query.
const resultsPerKeyword = 10

const mergeByName = `
MERGE (h:Entity {name: $head})
SET h.entity_type = $head_type,
    h.memory_type = $memory_type,
    h.importance_score = $importance_score,
    h.timestamp = $timestamp
MERGE (t:Entity {name: $tail})
SET t.entity_type = $tail_type,
    t.memory_type = $memory_type,
    t.importance_score = $importance_score,
    t.timestamp = $timestamp
MERGE (h)-[r:RELATION {predicate: $predicate}]->(t)
SET r.head_type = $head_type,
    r.tail_type = $tail_type,
    r.session_id = $session_id,
    r.memory_type = $memory_type,
    r.importance_score = $importance_score,
    r.timestamp = $timestamp`

const mergeByNameAndType = `
MERGE (h:Entity {name: $head, entity_type: $head_type})
SET h.memory_type = $memory_type,
    h.importance_score = $importance_score,
    h.timestamp = $timestamp
MERGE (t:Entity {name: $tail, entity_type: $tail_type})
SET t.memory_type = $memory_type,
    t.importance_score = $importance_score,
    t.timestamp = $timestamp
MERGE (h)-[r:RELATION {predicate: $predicate}]->(t)
SET r.head_type = $head_type,
    r.tail_type = $tail_type,
    r.session_id = $session_id,
    r.memory_type = $memory_type,
    r.importance_score = $importance_score,
    r.timestamp = $timestamp`

const keywordQuery = `
MATCH (h:Entity)-[r:RELATION]->(t:Entity)
WHERE (h.name CONTAINS $kw OR t.name CONTAINS $kw
    OR h.entity_type CONTAINS $kw OR t.entity_type CONTAINS $kw
    OR r.predicate CONTAINS $kw)
  AND (size($memory_types) = 0 OR r.memory_type IN $memory_types)
  AND (r.importance_score IS NULL OR r.importance_score >= $min_importance)
  AND ($since = 0.0 OR r.timestamp IS NULL OR r.timestamp >= $since)
RETURN h.name AS head, h.entity_type AS head_type, r.predicate AS predicate,
       t.name AS tail, t.entity_type AS tail_type,
       r.session_id AS session_id, r.memory_type AS memory_type,
       r.importance_score AS importance_score, r.timestamp AS timestamp
LIMIT $limit`

// Mirror dual-writes quintuples to the JSON master list and the graph.
type Mirror struct {
	cfg    config.GraphConfig
	master *storage.MasterStore
	runner Runner
}

// NewMirror connects to Neo4j when the graph is enabled. A failed
// connection degrades to file-only operation rather than erroring; the
// memory pipeline must not depend on the graph being up.
func NewMirror(cfg config.GraphConfig, master *storage.MasterStore) (*Mirror, error) {
	if master == nil {
		return nil, fmt.Errorf("graph: master store is required")
	}
	m := &Mirror{cfg: cfg, master: master}
	if !cfg.Enabled {
		return m, nil
	}

	runner, err := NewNeo4jRunner(cfg.URI, cfg.User, cfg.Password, cfg.Database)
	if err != nil {
		log.Printf("[graph] neo4j unavailable, file-only mode: %v", err)
		return m, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.VerifyConnectivity(ctx); err != nil {
		log.Printf("[graph] neo4j connectivity check failed, file-only mode: %v", err)
		runner.Close(ctx)
		return m, nil
	}
	m.runner = runner
	log.Printf("[graph] connected to %s", cfg.URI)
	return m, nil
}

// NewMirrorWithRunner wires an explicit runner; used by tests.
func NewMirrorWithRunner(cfg config.GraphConfig, master *storage.MasterStore, runner Runner) *Mirror {
	return &Mirror{cfg: cfg, master: master, runner: runner}
}

// GraphAvailable reports whether graph writes are currently attempted.
func (m *Mirror) GraphAvailable() bool {
	return m.runner != nil
}

// Store writes the quintuples to the master file, then mirrors each into
// the graph. Only the file write can fail the call; graph errors and
// records with an empty head or tail are logged and skipped.
func (m *Mirror) Store(ctx context.Context, quintuples []*types.Quintuple) (int, error) {
	added, err := m.master.StoreQuintuples(quintuples)
	if err != nil {
		return 0, err
	}
	if m.runner == nil {
		return added, nil
	}

	cypher := mergeByName
	if m.cfg.MergeByNameAndType {
		cypher = mergeByNameAndType
	}

	written := 0
	for _, q := range quintuples {
		if q.Subject == "" || q.Object == "" {
			log.Printf("[graph] skipping quintuple with empty head or tail: %q -%s- %q", q.Subject, q.Predicate, q.Object)
			continue
		}
		params := map[string]any{
			"head":             q.Subject,
			"head_type":        q.SubjectType,
			"predicate":        q.Predicate,
			"tail":             q.Object,
			"tail_type":        q.ObjectType,
			"session_id":       q.SessionID,
			"memory_type":      string(q.MemoryType),
			"importance_score": q.ImportanceScore,
			"timestamp":        q.RawTimestamp,
		}
		if err := m.runner.ExecuteWrite(ctx, cypher, params); err != nil {
			log.Printf("[graph] merge failed for %s -%s- %s: %v", q.Subject, q.Predicate, q.Object, err)
			continue
		}
		written++
	}
	if written < len(quintuples) {
		log.Printf("[graph] mirrored %d/%d quintuples", written, len(quintuples))
	}
	return added, nil
}

// QueryByKeywords runs one parameterized CONTAINS query per keyword and
// merges the hits, deduplicating on the full quintuple key. When the graph
// is unavailable or a query fails, it falls back to the master file.
func (m *Mirror) QueryByKeywords(ctx context.Context, keywords []string, filter storage.QuintupleFilter) ([]*types.Quintuple, error) {
	if m.runner == nil {
		filter.Keywords = keywords
		return m.master.SearchQuintuples(filter)
	}

	memoryTypes := make([]string, 0, len(filter.MemoryTypes))
	for _, t := range filter.MemoryTypes {
		memoryTypes = append(memoryTypes, string(t))
	}
	since := 0.0
	if filter.TimeWindow != nil {
		since = float64(time.Now().Add(-*filter.TimeWindow).UnixNano()) / 1e9
	}

	seen := make(map[types.DedupKey]bool)
	var out []*types.Quintuple
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		rows, err := m.runner.ExecuteRead(ctx, keywordQuery, map[string]any{
			"kw":             kw,
			"memory_types":   memoryTypes,
			"min_importance": filter.ImportanceThreshold,
			"since":          since,
			"limit":          resultsPerKeyword,
		})
		if err != nil {
			log.Printf("[graph] keyword query failed, falling back to file: %v", err)
			filter.Keywords = keywords
			return m.master.SearchQuintuples(filter)
		}
		for _, row := range rows {
			q := quintupleFromRow(row)
			if q == nil {
				continue
			}
			if k := q.Key(); !seen[k] {
				seen[k] = true
				out = append(out, q)
			}
		}
	}
	return out, nil
}

// Close releases the graph connection.
func (m *Mirror) Close(ctx context.Context) error {
	if m.runner == nil {
		return nil
	}
	return m.runner.Close(ctx)
}

func quintupleFromRow(row map[string]any) *types.Quintuple {
	q := &types.Quintuple{
		Subject:     stringValue(row["head"]),
		SubjectType: stringValue(row["head_type"]),
		Predicate:   stringValue(row["predicate"]),
		Object:      stringValue(row["tail"]),
		ObjectType:  stringValue(row["tail_type"]),
		SessionID:   stringValue(row["session_id"]),
		MemoryType:  types.MemoryType(stringValue(row["memory_type"])),
	}
	if q.Subject == "" || q.Object == "" {
		return nil
	}
	if !q.MemoryType.IsValid() {
		q.MemoryType = types.MemoryTypeFact
	}
	if v, ok := row["importance_score"].(float64); ok {
		q.ImportanceScore = v
	} else {
		q.ImportanceScore = 0.5
	}
	if v, ok := row["timestamp"].(float64); ok && v > 0 {
		q.RawTimestamp = v
		q.Timestamp = q.Time().Format(types.TimestampLayout)
	}
	return q
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
