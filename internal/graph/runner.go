// Package graph mirrors stored quintuples into a Neo4j knowledge graph.
// The JSON master file remains the source of truth: every write lands
// there first, and graph failures degrade to file-only operation instead
// of failing the pipeline.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Runner executes Cypher against a graph backend. The production runner
// wraps the Neo4j driver; tests substitute a fake.
type Runner interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ Runner = (*neo4jRunner)(nil)

// NewNeo4jRunner connects to the given bolt/neo4j URI with basic auth.
func NewNeo4jRunner(uri, user, password, database string) (Runner, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: create driver: %w", err)
	}
	return &neo4jRunner{driver: driver, database: database}, nil
}

func (r *neo4jRunner) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	return err
}

func (r *neo4jRunner) ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, rec.AsMap())
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return rows.([]map[string]any), nil
}

func (r *neo4jRunner) VerifyConnectivity(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *neo4jRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
