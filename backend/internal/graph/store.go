package graph

import (
	"fmt"
	"sort"

	apperrors "biograph/backend/pkg/errors"
)

// ============================================================================
// Graph Store
// ============================================================================

// Graph is an in-memory directed multigraph keyed by node and edge uuid.
//
// Entities handed out by the accessors are owned by the graph and must be
// treated as read-only; every change goes through an explicit store method.
// Iteration order is insertion order. A Graph is not safe for concurrent
// mutation.
type Graph struct {
	nodes map[string]*Node
	edges map[string]*Edge

	// node id -> neighbor id -> edge ids, in insertion order
	succ map[string]map[string][]string
	pred map[string]map[string][]string

	seq       uint64
	nodeOrder map[string]uint64
	edgeOrder map[string]uint64
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		succ:  make(map[string]map[string][]string),
		pred:  make(map[string]map[string][]string),

		nodeOrder: make(map[string]uint64),
		edgeOrder: make(map[string]uint64),
	}
}

// FromEntities builds a graph from already-decoded entities, failing on the
// first duplicate id or dangling edge endpoint
func FromEntities(nodes []*Node, edges []*Edge) (*Graph, error) {
	g := New()
	for _, n := range nodes {
		if err := g.insertNode(n.Clone()); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := g.insertEdge(e.Clone()); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode inserts a node
func (g *Graph) AddNode(id, label string, properties map[string]string) error {
	return g.insertNode(NewNode(id, label, properties))
}

// AddEdge inserts an edge between two nodes already in the graph
func (g *Graph) AddEdge(id, typ, start, end string, properties map[string]string) error {
	return g.insertEdge(NewEdge(id, typ, start, end, properties))
}

func (g *Graph) insertNode(n *Node) error {
	if _, ok := g.nodes[n.UUID]; ok {
		return apperrors.NewDuplicateKey("node", n.UUID)
	}
	g.nodes[n.UUID] = n
	g.succ[n.UUID] = make(map[string][]string)
	g.pred[n.UUID] = make(map[string][]string)
	g.nodeOrder[n.UUID] = g.next()
	return nil
}

func (g *Graph) insertEdge(e *Edge) error {
	if _, ok := g.edges[e.UUID]; ok {
		return apperrors.NewDuplicateKey("edge", e.UUID)
	}
	if _, ok := g.nodes[e.StartNode]; !ok {
		return apperrors.NewDanglingReference(e.UUID, e.StartNode)
	}
	if _, ok := g.nodes[e.EndNode]; !ok {
		return apperrors.NewDanglingReference(e.UUID, e.EndNode)
	}
	g.edges[e.UUID] = e
	g.succ[e.StartNode][e.EndNode] = append(g.succ[e.StartNode][e.EndNode], e.UUID)
	g.pred[e.EndNode][e.StartNode] = append(g.pred[e.EndNode][e.StartNode], e.UUID)
	g.edgeOrder[e.UUID] = g.next()
	return nil
}

func (g *Graph) next() uint64 {
	g.seq++
	return g.seq
}

// RemoveNode deletes a node. Edges still referencing it are not cascaded:
// callers rewire or remove them first.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return apperrors.NewNotFound("node", id)
	}
	delete(g.nodes, id)
	delete(g.succ, id)
	delete(g.pred, id)
	delete(g.nodeOrder, id)
	return nil
}

// RemoveEdge deletes an edge
func (g *Graph) RemoveEdge(id string) error {
	e, ok := g.edges[id]
	if !ok {
		return apperrors.NewNotFound("edge", id)
	}
	delete(g.edges, id)
	delete(g.edgeOrder, id)
	if nbrs, ok := g.succ[e.StartNode]; ok {
		if ids := without(nbrs[e.EndNode], id); len(ids) > 0 {
			nbrs[e.EndNode] = ids
		} else {
			delete(nbrs, e.EndNode)
		}
	}
	if nbrs, ok := g.pred[e.EndNode]; ok {
		if ids := without(nbrs[e.StartNode], id); len(ids) > 0 {
			nbrs[e.StartNode] = ids
		} else {
			delete(nbrs, e.StartNode)
		}
	}
	return nil
}

// ReplaceNode swaps the stored node for an updated copy with the same uuid
func (g *Graph) ReplaceNode(n *Node) error {
	if _, ok := g.nodes[n.UUID]; !ok {
		return apperrors.NewNotFound("node", n.UUID)
	}
	g.nodes[n.UUID] = n.Clone()
	return nil
}

// ReplaceEdge swaps the stored edge for an updated copy with the same uuid and
// endpoints; use RemoveEdge and AddEdge to move an edge
func (g *Graph) ReplaceEdge(e *Edge) error {
	old, ok := g.edges[e.UUID]
	if !ok {
		return apperrors.NewNotFound("edge", e.UUID)
	}
	if old.StartNode != e.StartNode || old.EndNode != e.EndNode {
		return fmt.Errorf("replace edge %s: endpoints changed from %s->%s to %s->%s",
			e.UUID, old.StartNode, old.EndNode, e.StartNode, e.EndNode)
	}
	g.edges[e.UUID] = e.Clone()
	return nil
}

// Node returns the node with the given uuid
func (g *Graph) Node(id string) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, apperrors.NewNotFound("node", id)
	}
	return n, nil
}

// HasNode reports whether the node is present
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Edge returns the edge with the given uuid
func (g *Graph) Edge(id string) (*Edge, error) {
	e, ok := g.edges[id]
	if !ok {
		return nil, apperrors.NewNotFound("edge", id)
	}
	return e, nil
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges, orphaned ones included
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Nodes returns all nodes in insertion order
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return g.nodeOrder[out[i].UUID] < g.nodeOrder[out[j].UUID] })
	return out
}

// Edges returns all edges in insertion order
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	g.sortEdges(out)
	return out
}

// Successors maps each neighbor reached by an outgoing edge of id to the
// edges toward it
func (g *Graph) Successors(id string) (map[string][]*Edge, error) {
	return g.neighbors(g.succ, id)
}

// Predecessors maps each neighbor with an edge into id to the edges from it
func (g *Graph) Predecessors(id string) (map[string][]*Edge, error) {
	return g.neighbors(g.pred, id)
}

// OutEdges returns the outgoing edges of id in insertion order
func (g *Graph) OutEdges(id string) ([]*Edge, error) {
	return g.incident(g.succ, id)
}

// InEdges returns the incoming edges of id in insertion order
func (g *Graph) InEdges(id string) ([]*Edge, error) {
	return g.incident(g.pred, id)
}

func (g *Graph) neighbors(adj map[string]map[string][]string, id string) (map[string][]*Edge, error) {
	nbrs, ok := adj[id]
	if !ok {
		return nil, apperrors.NewNotFound("node", id)
	}
	out := make(map[string][]*Edge, len(nbrs))
	for nbr, ids := range nbrs {
		edges := make([]*Edge, 0, len(ids))
		for _, eid := range ids {
			edges = append(edges, g.edges[eid])
		}
		out[nbr] = edges
	}
	return out, nil
}

func (g *Graph) incident(adj map[string]map[string][]string, id string) ([]*Edge, error) {
	nbrs, ok := adj[id]
	if !ok {
		return nil, apperrors.NewNotFound("node", id)
	}
	var out []*Edge
	for _, ids := range nbrs {
		for _, eid := range ids {
			out = append(out, g.edges[eid])
		}
	}
	g.sortEdges(out)
	return out, nil
}

func (g *Graph) sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return g.edgeOrder[edges[i].UUID] < g.edgeOrder[edges[j].UUID] })
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
