package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"biograph/backend/internal/graph"
	apperrors "biograph/backend/pkg/errors"
)

// symbolPattern matches labels and relationship types that are safe to
// interpolate into Cypher
var symbolPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validSymbol(s string) error {
	if !symbolPattern.MatchString(s) {
		return apperrors.NewInvalidIdentifier(s)
	}
	return nil
}

// Commit applies a single change in its own write transaction. Repository
// satisfies graph.Committer.
func (r *Repository) Commit(ctx context.Context, change graph.Change) error {
	switch change.Kind {
	case graph.ChangeUpsertEdge:
		return r.upsertEdge(ctx, change.Edge)
	case graph.ChangeUpsertNode:
		return r.upsertNode(ctx, change.Node)
	case graph.ChangeDeleteNode:
		return r.deleteNode(ctx, change.NodeID)
	default:
		return fmt.Errorf("unknown change kind %q", change.Kind)
	}
}

func (r *Repository) write(ctx context.Context, name string, work neo4j.ManagedTransactionWork) (any, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeGraph) {
			return nil, err
		}
		return nil, apperrors.NewGraphQueryFailed(name, err)
	}
	return out, nil
}

// matchedCount reads the single count column returned by an update query
func matchedCount(ctx context.Context, result neo4j.ResultWithContext) (int64, error) {
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	val, _ := record.Get("matched")
	n, _ := val.(int64)
	return n, nil
}

func (r *Repository) upsertNode(ctx context.Context, n *graph.Node) error {
	if err := validSymbol(n.Label); err != nil {
		return err
	}

	stored := `
		MATCH (n) WHERE n.uuid = $uuid OR elementId(n) = $uuid
		RETURN properties(n) AS props LIMIT 1
	`
	update := `
		MATCH (n) WHERE n.uuid = $uuid OR elementId(n) = $uuid
		SET n = $props
	`
	create := fmt.Sprintf("CREATE (n:%s) SET n = $props", n.Label)

	_, err := r.write(ctx, "upsert node", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, stored, map[string]any{"uuid": n.UUID})
		if err != nil {
			return nil, err
		}
		existing, found, err := storedProperties(ctx, result)
		if err != nil {
			return nil, err
		}

		params := map[string]any{"uuid": n.UUID, "props": toParams(n.UUID, n.Properties, existing)}
		query := create
		if found {
			query = update
		}
		_, err = tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return err
	}

	r.logger.Info("Node upserted", zap.String("uuid", n.UUID), zap.String("label", n.Label))
	return nil
}

func (r *Repository) upsertEdge(ctx context.Context, e *graph.Edge) error {
	if err := validSymbol(e.Type); err != nil {
		return err
	}

	endpoints := `
		MATCH (a) WHERE a.uuid = $start OR elementId(a) = $start
		MATCH (b) WHERE b.uuid = $end OR elementId(b) = $end
		RETURN count(*) AS matched
	`
	update := fmt.Sprintf(`
		MATCH (a)-[r:%s]->(b)
		WHERE (a.uuid = $start OR elementId(a) = $start)
		  AND (b.uuid = $end OR elementId(b) = $end)
		  AND (r.uuid = $uuid OR elementId(r) = $uuid)
		SET r = $props
		RETURN count(r) AS matched
	`, e.Type)
	create := fmt.Sprintf(`
		MATCH (a) WHERE a.uuid = $start OR elementId(a) = $start
		MATCH (b) WHERE b.uuid = $end OR elementId(b) = $end
		CREATE (a)-[r:%s]->(b)
		SET r = $props
	`, e.Type)
	// a re-pointed relationship keeps its uuid; drop its old copy
	cleanup := `
		MATCH ()-[r]->()
		WHERE r.uuid = $uuid AND NOT (
			(startNode(r).uuid = $start OR elementId(startNode(r)) = $start) AND
			(endNode(r).uuid = $end OR elementId(endNode(r)) = $end)
		)
		DELETE r
	`
	// the stored copy may still sit between the old endpoints
	stored := `
		MATCH ()-[r]->() WHERE r.uuid = $uuid OR elementId(r) = $uuid
		RETURN properties(r) AS props LIMIT 1
	`
	params := map[string]any{
		"uuid":  e.UUID,
		"start": e.StartNode,
		"end":   e.EndNode,
	}

	_, err := r.write(ctx, "upsert relationship", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, endpoints, params)
		if err != nil {
			return nil, err
		}
		found, err := matchedCount(ctx, result)
		if err != nil {
			return nil, err
		}
		if found == 0 {
			return nil, apperrors.NewDanglingReference(e.UUID, e.StartNode+"|"+e.EndNode)
		}

		result, err = tx.Run(ctx, stored, params)
		if err != nil {
			return nil, err
		}
		existing, _, err := storedProperties(ctx, result)
		if err != nil {
			return nil, err
		}
		params["props"] = toParams(e.UUID, e.Properties, existing)

		result, err = tx.Run(ctx, update, params)
		if err != nil {
			return nil, err
		}
		matched, err := matchedCount(ctx, result)
		if err != nil {
			return nil, err
		}
		if matched == 0 {
			if _, err := tx.Run(ctx, create, params); err != nil {
				return nil, err
			}
		}
		_, err = tx.Run(ctx, cleanup, params)
		return nil, err
	})
	if err != nil {
		return err
	}

	r.logger.Info("Relationship upserted",
		zap.String("uuid", e.UUID),
		zap.String("type", e.Type),
		zap.String("start", e.StartNode),
		zap.String("end", e.EndNode),
	)
	return nil
}

func (r *Repository) deleteNode(ctx context.Context, id string) error {
	query := `
		MATCH (n) WHERE n.uuid = $uuid OR elementId(n) = $uuid
		DETACH DELETE n
	`

	_, err := r.write(ctx, "delete node", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"uuid": id})
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		if summary.Counters().NodesDeleted() == 0 {
			return nil, apperrors.NewNotFound("node", id)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("Node deleted", zap.String("uuid", id))
	return nil
}
