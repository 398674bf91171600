package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"biograph/backend/internal/graph"
	apperrors "biograph/backend/pkg/errors"
	"biograph/backend/pkg/logger"
)

// Repository handles all Neo4j database operations
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewRepository creates a new graph repository. An empty database name
// selects the server default.
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}
}

// Connect creates a driver and verifies connectivity
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// read runs query in a read transaction and returns every record
func (r *Repository) read(ctx context.Context, name, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(name, err)
	}
	return records.([]*neo4j.Record), nil
}

// NodesWithNeighbours loads the given nodes, their one-hop neighbors and the
// relationships connecting them
func (r *Repository) NodesWithNeighbours(ctx context.Context, uuids []string) (*graph.Graph, error) {
	query := `
		MATCH (n) WHERE n.uuid IN $uuids OR elementId(n) IN $uuids
		OPTIONAL MATCH (n)-[r]-(m)
		RETURN n, r, m
	`

	records, err := r.read(ctx, "nodes with neighbours", query, map[string]any{"uuids": uuids})
	if err != nil {
		return nil, err
	}
	return decodeGraph(records, "n", "r", "m")
}

// Graph loads every node and relationship
func (r *Repository) Graph(ctx context.Context) (*graph.Graph, error) {
	query := `
		MATCH (n)
		OPTIONAL MATCH (n)-[r]->()
		RETURN n, r
	`

	records, err := r.read(ctx, "whole graph", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeGraph(records, "n", "r")
}

// Nodes returns every node
func (r *Repository) Nodes(ctx context.Context) ([]*graph.Node, error) {
	records, err := r.read(ctx, "all nodes", "MATCH (n) RETURN n", nil)
	if err != nil {
		return nil, err
	}
	nodes := make([]*graph.Node, 0, len(records))
	for _, rec := range records {
		if n, ok := nodeFromRecord(rec, "n"); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// Node returns the node with the given uuid
func (r *Repository) Node(ctx context.Context, id string) (*graph.Node, error) {
	query := `
		MATCH (n) WHERE n.uuid = $id OR elementId(n) = $id
		RETURN n LIMIT 1
	`

	records, err := r.read(ctx, "node by id", query, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("node", id)
	}
	n, ok := nodeFromRecord(records[0], "n")
	if !ok {
		return nil, apperrors.NewNotFound("node", id)
	}
	return n, nil
}

const relationshipReturn = `
		RETURN r,
			coalesce(a.uuid, elementId(a)) AS start,
			coalesce(b.uuid, elementId(b)) AS end
`

// Relationships returns every relationship
func (r *Repository) Relationships(ctx context.Context) ([]*graph.Edge, error) {
	query := `MATCH (a)-[r]->(b)` + relationshipReturn

	records, err := r.read(ctx, "all relationships", query, nil)
	if err != nil {
		return nil, err
	}
	edges := make([]*graph.Edge, 0, len(records))
	for _, rec := range records {
		if e, ok := edgeFromRecord(rec); ok {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

// Relationship returns the relationship with the given uuid
func (r *Repository) Relationship(ctx context.Context, id string) (*graph.Edge, error) {
	query := `
		MATCH (a)-[r]->(b) WHERE r.uuid = $id OR elementId(r) = $id
		WITH a, r, b LIMIT 1` + relationshipReturn

	records, err := r.read(ctx, "relationship by id", query, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("relationship", id)
	}
	e, ok := edgeFromRecord(records[0])
	if !ok {
		return nil, apperrors.NewNotFound("relationship", id)
	}
	return e, nil
}

// UUIDAssignment reports how many entities received a generated uuid
type UUIDAssignment struct {
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
}

// AssignMissingUUIDs gives every node and relationship without a uuid
// property a random one
func (r *Repository) AssignMissingUUIDs(ctx context.Context) (UUIDAssignment, error) {
	var out UUIDAssignment

	nodes, err := r.assignUUIDs(ctx,
		`MATCH (n) WHERE n.uuid IS NULL RETURN elementId(n) AS id`,
		`UNWIND $rows AS row MATCH (n) WHERE elementId(n) = row.id SET n.uuid = row.uuid`,
	)
	if err != nil {
		return out, err
	}
	out.Nodes = nodes

	rels, err := r.assignUUIDs(ctx,
		`MATCH ()-[r]->() WHERE r.uuid IS NULL RETURN elementId(r) AS id`,
		`UNWIND $rows AS row MATCH ()-[r]->() WHERE elementId(r) = row.id SET r.uuid = row.uuid`,
	)
	if err != nil {
		return out, err
	}
	out.Relationships = rels

	r.logger.Info("Missing uuids assigned",
		zap.Int("nodes", out.Nodes),
		zap.Int("relationships", out.Relationships),
	)
	return out, nil
}

func (r *Repository) assignUUIDs(ctx context.Context, selectQuery, updateQuery string) (int, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	count, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, selectQuery, nil)
		if err != nil {
			return 0, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return 0, err
		}
		if len(records) == 0 {
			return 0, nil
		}

		rows := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, map[string]any{
				"id":   getStringFromRecord(rec, "id"),
				"uuid": uuid.NewString(),
			})
		}
		if _, err := tx.Run(ctx, updateQuery, map[string]any{"rows": rows}); err != nil {
			return 0, err
		}
		return len(rows), nil
	})
	if err != nil {
		return 0, apperrors.NewGraphQueryFailed("assign uuids", err)
	}
	return count.(int), nil
}

// EnsureConstraints creates uuid indexes for the known labels
func (r *Repository) EnsureConstraints(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, label := range graph.KnownLabels() {
		query := fmt.Sprintf("CREATE INDEX %s_uuid IF NOT EXISTS FOR (n:%s) ON (n.uuid)", lowerSnake(label), label)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, query, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("failed to create index for %s: %w", label, err)
		}
	}
	return nil
}
