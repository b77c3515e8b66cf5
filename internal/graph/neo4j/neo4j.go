// Package neo4j mirrors assembled graphs into Neo4j and reads and writes the
// Problem→Project link set there.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/impactgraph/internal/apperr"
	"github.com/efebarandurmaz/impactgraph/internal/graph"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
)

// Store implements graph.Repository.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New connects and verifies connectivity.
func New(ctx context.Context, uri, username, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperr.Wrap(apperr.CodeDataUnavailable, err, "neo4j connectivity")
	}
	return &Store{driver: driver, database: database}, nil
}

func (s *Store) Name() string { return "neo4j" }

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// EnsureSchema creates one uniqueness constraint on id per node label.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	for _, label := range labels {
		cypher := fmt.Sprintf("CREATE CONSTRAINT %s_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", label, label)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, cypher, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("constraint %s: %w", label, err)
		}
	}
	return nil
}

// StoreGraph MERGEs every node, then replaces the outgoing relationships of
// every node in g so that the mirror matches the graph exactly for those
// nodes.
func (s *Store) StoreGraph(ctx context.Context, g *graph.Graph) error {
	ctx, span := observability.StartSyncSpan(ctx, "neo4j")
	defer span.End()

	session := s.session(ctx)
	defer session.Close(ctx)

	for _, batch := range nodeBatches(g) {
		if len(batch.rows) == 0 {
			continue
		}
		cypher := fmt.Sprintf("UNWIND $rows AS row MERGE (n:%s {id: row.id}) SET n += row", batch.label)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, cypher, map[string]any{"rows": batch.rows})
			return nil, err
		})
		if err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("store %s nodes: %w", batch.label, err)
		}
	}

	for _, batch := range relationshipBatches(g) {
		clear := fmt.Sprintf("UNWIND $from AS id MATCH (a:%s {id: id})-[r:%s]->() DELETE r",
			batch.fromLabel, batch.relation)
		merge := fmt.Sprintf("UNWIND $rows AS row MATCH (a:%s {id: row.from}) MATCH (b:%s {id: row.to}) "+
			"MERGE (a)-[r:%s]->(b) SET r.position = row.position",
			batch.fromLabel, batch.toLabel, batch.relation)
		if batch.relation == graph.RelHasRelevance {
			merge += ", r.level = row.level"
		}
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			if _, err := tx.Run(ctx, clear, map[string]any{"from": batch.from}); err != nil {
				return nil, err
			}
			_, err := tx.Run(ctx, merge, map[string]any{"rows": batch.rows})
			return nil, err
		})
		if err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("store %s relationships: %w", batch.relation, err)
		}
	}
	return nil
}

// ProblemProjects returns a problem's linked project ids in link order.
func (s *Store) ProblemProjects(ctx context.Context, problemID string) ([]string, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (p:Problem {id: $id}) "+
				"OPTIONAL MATCH (p)-[r:ADDRESSED_BY]->(j:Project) "+
				"RETURN j.id AS id, r.position AS position ORDER BY position",
			map[string]any{"id": problemID})
		if err != nil {
			return nil, err
		}
		found := false
		ids := []string{}
		for records.Next(ctx) {
			found = true
			if id, ok := records.Record().Get("id"); ok && id != nil {
				ids = append(ids, id.(string))
			}
		}
		if err := records.Err(); err != nil {
			return nil, err
		}
		if !found {
			return nil, apperr.Newf(apperr.CodeNotFound, "problem %s not in neo4j", problemID)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// SetProblemProjects replaces a problem's ADDRESSED_BY relationships in
// one transaction. Project ids without a node are skipped.
func (s *Store) SetProblemProjects(ctx context.Context, problemID string, projectIDs []string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	rows := make([]map[string]any, 0, len(projectIDs))
	for i, id := range projectIDs {
		rows = append(rows, map[string]any{"id": id, "position": i})
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MATCH (p:Problem {id: $id})-[r:ADDRESSED_BY]->() DELETE r",
			map[string]any{"id": problemID}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx,
			"MATCH (p:Problem {id: $id}) UNWIND $rows AS row "+
				"MATCH (j:Project {id: row.id}) MERGE (p)-[r:ADDRESSED_BY]->(j) SET r.position = row.position",
			map[string]any{"id": problemID, "rows": rows})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("set projects of %s: %w", problemID, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

var _ graph.Repository = (*Store)(nil)
