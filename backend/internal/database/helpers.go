package database

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"biograph/backend/internal/graph"
	apperrors "biograph/backend/pkg/errors"
)

// uuidProperty is the property holding an entity's stable identifier
const uuidProperty = "uuid"

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func nodeFromRecord(record *neo4j.Record, key string) (*graph.Node, bool) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil, false
	}
	n, ok := val.(dbtype.Node)
	if !ok {
		return nil, false
	}
	return toNode(n), true
}

// edgeFromRecord reads a relationship row shaped r, start, end
func edgeFromRecord(record *neo4j.Record) (*graph.Edge, bool) {
	val, ok := record.Get("r")
	if !ok || val == nil {
		return nil, false
	}
	rel, ok := val.(dbtype.Relationship)
	if !ok {
		return nil, false
	}
	return toEdge(rel, getStringFromRecord(record, "start"), getStringFromRecord(record, "end")), true
}

func toNode(n dbtype.Node) *graph.Node {
	return graph.NewNode(entityID(n.Props, n.ElementId), primaryLabel(n.Labels), toProperties(n.Props))
}

func toEdge(rel dbtype.Relationship, start, end string) *graph.Edge {
	return graph.NewEdge(entityID(rel.Props, rel.ElementId), rel.Type, start, end, toProperties(rel.Props))
}

// decodeGraph builds a Graph from rows of nodes and relationships. Keys are
// the record columns to inspect; each may hold a node, a relationship or nil.
func decodeGraph(records []*neo4j.Record, keys ...string) (*graph.Graph, error) {
	var (
		nodes    []*graph.Node
		nodeIDs  = make(map[string]string) // element id -> uuid
		rels     []dbtype.Relationship
		seenRels = make(map[string]bool)
	)

	for _, rec := range records {
		for _, key := range keys {
			val, ok := rec.Get(key)
			if !ok || val == nil {
				continue
			}
			switch v := val.(type) {
			case dbtype.Node:
				if _, dup := nodeIDs[v.ElementId]; dup {
					continue
				}
				n := toNode(v)
				nodeIDs[v.ElementId] = n.UUID
				nodes = append(nodes, n)
			case dbtype.Relationship:
				if seenRels[v.ElementId] {
					continue
				}
				seenRels[v.ElementId] = true
				rels = append(rels, v)
			}
		}
	}

	edges := make([]*graph.Edge, 0, len(rels))
	for _, rel := range rels {
		start, ok := nodeIDs[rel.StartElementId]
		if !ok {
			return nil, apperrors.NewDanglingReference(entityID(rel.Props, rel.ElementId), rel.StartElementId)
		}
		end, ok := nodeIDs[rel.EndElementId]
		if !ok {
			return nil, apperrors.NewDanglingReference(entityID(rel.Props, rel.ElementId), rel.EndElementId)
		}
		edges = append(edges, toEdge(rel, start, end))
	}

	return graph.FromEntities(nodes, edges)
}

// entityID prefers the uuid property and falls back to the element id
func entityID(props map[string]any, elementID string) string {
	if id, ok := props[uuidProperty].(string); ok && id != "" {
		return id
	}
	return elementID
}

// primaryLabel picks the first known label, or the first label at all
func primaryLabel(labels []string) string {
	known := graph.KnownLabels()
	for _, l := range labels {
		if slices.Contains(known, l) {
			return l
		}
	}
	if len(labels) > 0 {
		return labels[0]
	}
	return ""
}

func toProperties(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if k == uuidProperty {
			continue
		}
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(val)
	}
}

// toParams converts string properties into Cypher parameters, restoring the
// uuid property. A value whose string form is unchanged from stored keeps its
// stored type, so untouched numbers, booleans and lists survive a write-back.
func toParams(id string, props map[string]string, stored map[string]any) map[string]any {
	out := make(map[string]any, len(props)+1)
	for k, v := range props {
		if prev, ok := stored[k]; ok && stringify(prev) == v {
			out[k] = prev
			continue
		}
		out[k] = v
	}
	out[uuidProperty] = id
	return out
}

// storedProperties reads the properties map returned under "props", if any
func storedProperties(ctx context.Context, result neo4j.ResultWithContext) (map[string]any, bool, error) {
	records, err := result.Collect(ctx)
	if err != nil || len(records) == 0 {
		return nil, false, err
	}
	val, _ := records[0].Get("props")
	props, _ := val.(map[string]any)
	return props, true, nil
}

func lowerSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
