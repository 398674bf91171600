package graph

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Identifier Analytics
// ============================================================================

// IdentifierFrequency counts how many nodes carry an identifier
type IdentifierFrequency struct {
	Identifier string `json:"identifier"`
	Frequency  int    `json:"frequency"`
}

// IdentifierFrequencies counts every identifier of the graph, most frequent
// first, ties by identifier
func IdentifierFrequencies(g *Graph) []IdentifierFrequency {
	counts := make(map[string]int)
	for _, n := range g.Nodes() {
		for _, id := range n.Identifiers {
			counts[id]++
		}
	}

	out := make([]IdentifierFrequency, 0, len(counts))
	for id, c := range counts {
		out = append(out, IdentifierFrequency{Identifier: id, Frequency: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

// NodesWithIdentifier returns the uuids of nodes carrying identifier, in
// insertion order
func NodesWithIdentifier(g *Graph, identifier string) []string {
	var out []string
	for _, n := range g.Nodes() {
		if n.HasIdentifier(identifier) {
			out = append(out, n.UUID)
		}
	}
	return out
}

// Neighbourhood copies the given nodes, their one-hop neighbors and the edges
// incident to the given nodes into a new graph
func Neighbourhood(g *Graph, uuids []string) (*Graph, error) {
	var nodes []*Node
	var edges []*Edge
	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)

	addNode := func(id string) error {
		if seenNodes[id] {
			return nil
		}
		n, err := g.Node(id)
		if err != nil {
			return err
		}
		seenNodes[id] = true
		nodes = append(nodes, n)
		return nil
	}

	for _, id := range uuids {
		if err := addNode(id); err != nil {
			return nil, err
		}
	}
	for _, id := range uuids {
		out, err := g.OutEdges(id)
		if err != nil {
			return nil, err
		}
		in, err := g.InEdges(id)
		if err != nil {
			return nil, err
		}
		for _, e := range append(out, in...) {
			if seenEdges[e.UUID] {
				continue
			}
			seenEdges[e.UUID] = true
			if err := addNode(e.StartNode); err != nil {
				return nil, err
			}
			if err := addNode(e.EndNode); err != nil {
				return nil, err
			}
			edges = append(edges, e)
		}
	}
	g.sortEdges(edges)

	return FromEntities(nodes, edges)
}

// ============================================================================
// Duplicate Candidates
// ============================================================================

// Candidate is a group of same-label nodes sharing an identifier
type Candidate struct {
	Identifier string   `json:"identifier"`
	Label      string   `json:"label"`
	UUIDs      []string `json:"uuids"`
	Score      int      `json:"score"`
}

// CandidateOptions tunes DuplicateCandidates
type CandidateOptions struct {
	Workers  int // concurrent scorers, at least 1
	MinScore int // groups scoring below are dropped
}

// DuplicateCandidates groups nodes that share an identifier and a label and
// scores each group with Similarity. Groups are scored concurrently; g must
// not be mutated until it returns.
func DuplicateCandidates(ctx context.Context, g *Graph, opts CandidateOptions) ([]Candidate, error) {
	type groupKey struct{ identifier, label string }
	groups := make(map[groupKey][]string)
	var keys []groupKey
	for _, n := range g.Nodes() {
		for _, id := range n.Identifiers {
			k := groupKey{identifier: id, label: n.Label}
			if _, ok := groups[k]; !ok {
				keys = append(keys, k)
			}
			groups[k] = append(groups[k], n.UUID)
		}
	}

	var pending []Candidate
	for _, k := range keys {
		if len(groups[k]) < 2 {
			continue
		}
		pending = append(pending, Candidate{Identifier: k.identifier, Label: k.label, UUIDs: groups[k]})
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i := range pending {
		idx := i
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			score, err := Similarity(g, pending[idx].UUIDs)
			if err != nil {
				return err
			}
			pending[idx].Score = score
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(pending))
	for _, c := range pending {
		if c.Score >= opts.MinScore {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Identifier != out[j].Identifier {
			return out[i].Identifier < out[j].Identifier
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}
