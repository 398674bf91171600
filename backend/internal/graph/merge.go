package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "biograph/backend/pkg/errors"
	"biograph/backend/pkg/logger"
)

// ============================================================================
// Node Merger
// ============================================================================

// Merge collapses the given nodes into the first one, the destination. The
// graph is mutated in place and returned.
//
// Sources are absorbed in order: each of their edges is either folded into a
// destination edge of the same type toward the same neighbor (missing
// properties filled in, never overwritten) or re-pointed to the destination
// under its own uuid. Node properties are first-writer-wins. Every mutation is
// forwarded to c as it happens; a commit error stops the merge and is returned
// as an ErrCommitFailed, without undoing earlier commits.
func Merge(ctx context.Context, g *Graph, uuids []string, c Committer) (*Graph, error) {
	for _, id := range uuids {
		if !g.HasNode(id) {
			return nil, apperrors.NewNotFound("node", id)
		}
	}
	if len(uuids) < 2 {
		return g, nil
	}
	if c == nil {
		c = NopCommitter
	}

	log := logger.Get()
	m := &merger{g: g, c: c, log: log, dst: uuids[0]}

	dst, _ := g.Node(m.dst)
	properties := cloneProperties(dst.Properties)

	seen := map[string]bool{m.dst: true}
	for _, src := range uuids[1:] {
		if seen[src] {
			log.Debug("Skipping repeated merge source", zap.String("uuid", src))
			continue
		}
		seen[src] = true

		if err := m.absorb(ctx, src, properties); err != nil {
			return nil, err
		}
	}

	merged := dst.WithProperties(properties)
	if err := g.ReplaceNode(merged); err != nil {
		return nil, err
	}
	if err := m.commit(ctx, Change{Kind: ChangeUpsertNode, Node: merged.Clone()}); err != nil {
		return nil, err
	}

	log.Info("Nodes merged",
		zap.String("destination", m.dst),
		zap.Int("sources", len(seen)-1),
		zap.Int("edges_moved", m.moved),
		zap.Int("edges_folded", m.folded),
	)
	return g, nil
}

type merger struct {
	g   *Graph
	c   Committer
	log *zap.Logger
	dst string

	moved  int
	folded int
}

// absorb moves every edge of src onto the destination, adopts its missing
// properties and removes it
func (m *merger) absorb(ctx context.Context, src string, properties map[string]string) error {
	out, err := m.g.OutEdges(src)
	if err != nil {
		return err
	}
	for _, e := range out {
		if err := m.rewire(ctx, e, true); err != nil {
			return err
		}
	}

	// Taken after the outgoing pass so self-loops on src, now dst->src, are
	// rewired a second time into dst->dst
	in, err := m.g.InEdges(src)
	if err != nil {
		return err
	}
	for _, e := range in {
		if err := m.rewire(ctx, e, false); err != nil {
			return err
		}
	}

	srcNode, err := m.g.Node(src)
	if err != nil {
		return err
	}
	added := fillMissing(properties, srcNode.Properties)

	if err := m.g.RemoveNode(src); err != nil {
		return err
	}
	if err := m.commit(ctx, Change{Kind: ChangeDeleteNode, NodeID: src}); err != nil {
		return err
	}

	m.log.Debug("Merge source absorbed",
		zap.String("source", src),
		zap.String("destination", m.dst),
		zap.Int("properties_added", added),
	)
	return nil
}

// rewire handles one edge of a source. outgoing selects which endpoint is
// replaced by the destination.
func (m *merger) rewire(ctx context.Context, e *Edge, outgoing bool) error {
	start, end := e.StartNode, e.EndNode
	if outgoing {
		start = m.dst
	} else {
		end = m.dst
	}

	if existing := m.match(e.Type, start, end, e.UUID); existing != nil {
		props := cloneProperties(existing.Properties)
		fillMissing(props, e.Properties)
		folded := existing.WithProperties(props)

		if err := m.g.ReplaceEdge(folded); err != nil {
			return err
		}
		if err := m.g.RemoveEdge(e.UUID); err != nil {
			return err
		}
		m.folded++
		return m.commit(ctx, Change{Kind: ChangeUpsertEdge, Edge: folded.Clone()})
	}

	moved := e.WithEndpoints(start, end)
	if err := m.g.RemoveEdge(e.UUID); err != nil {
		return err
	}
	if err := m.g.insertEdge(moved); err != nil {
		return err
	}
	m.moved++
	return m.commit(ctx, Change{Kind: ChangeUpsertEdge, Edge: moved.Clone()})
}

// match finds the first edge of the given type from start to end, other than skip
func (m *merger) match(typ, start, end, skip string) *Edge {
	nbrs, err := m.g.Successors(start)
	if err != nil {
		return nil
	}
	for _, candidate := range nbrs[end] {
		if candidate.UUID != skip && candidate.Type == typ {
			return candidate
		}
	}
	return nil
}

func (m *merger) commit(ctx context.Context, change Change) error {
	if err := m.c.Commit(ctx, change); err != nil {
		m.log.Error("Merge commit failed",
			zap.String("change", string(change.Kind)),
			zap.String("target", change.TargetID()),
			zap.Error(err),
		)
		return apperrors.NewCommitFailed(string(change.Kind), change.TargetID(), fmt.Errorf("merge into %s: %w", m.dst, err))
	}
	return nil
}
