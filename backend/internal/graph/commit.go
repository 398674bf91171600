package graph

import "context"

// ChangeKind identifies one of the mutations a merge forwards to the backing store
type ChangeKind string

const (
	ChangeUpsertEdge ChangeKind = "upsert-edge"
	ChangeUpsertNode ChangeKind = "upsert-node"
	ChangeDeleteNode ChangeKind = "delete-node"
)

// Change is a single mutation. Exactly one of Node, Edge, NodeID is set,
// according to Kind.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Node   *Node      `json:"node,omitempty"`
	Edge   *Edge      `json:"edge,omitempty"`
	NodeID string     `json:"node_id,omitempty"`
}

// TargetID returns the uuid of the entity the change applies to
func (c Change) TargetID() string {
	switch c.Kind {
	case ChangeUpsertEdge:
		return c.Edge.UUID
	case ChangeUpsertNode:
		return c.Node.UUID
	default:
		return c.NodeID
	}
}

// Committer receives every mutation of a merge, in order
type Committer interface {
	Commit(ctx context.Context, change Change) error
}

// CommitterFunc adapts a function to a Committer
type CommitterFunc func(ctx context.Context, change Change) error

func (f CommitterFunc) Commit(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// NopCommitter discards every change; merging with it only touches the
// in-memory graph
var NopCommitter Committer = CommitterFunc(func(context.Context, Change) error { return nil })

// Recorder collects changes in order and optionally forwards them to Next
type Recorder struct {
	Next    Committer
	Changes []Change
}

// Commit records the change after Next accepted it
func (r *Recorder) Commit(ctx context.Context, change Change) error {
	if r.Next != nil {
		if err := r.Next.Commit(ctx, change); err != nil {
			return err
		}
	}
	r.Changes = append(r.Changes, change)
	return nil
}
