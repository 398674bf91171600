package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "biograph/backend/pkg/errors"
)

func TestMerge_DeduplicatesParallelEdges(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y"},
		[]string{"a", "b", "n"},
		[]testEdge{
			{id: "e1", typ: "T", start: "a", end: "n"},
			{id: "e2", typ: "T", start: "b", end: "n"},
		})

	out, err := Merge(context.Background(), g, []string{"a", "b"}, NopCommitter)
	require.NoError(t, err)
	assert.Same(t, g, out)

	assert.False(t, g.HasNode("b"))
	succ, err := g.Successors("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, edgeIDs(succ["n"]))
	assert.Equal(t, 1, g.EdgeCount())
}

func TestMerge_PropertiesFirstWriterWins(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", "X", map[string]string{"p": "1"}))
	require.NoError(t, g.AddNode("b", "X", map[string]string{"p": "2", "q": "5"}))
	require.NoError(t, g.AddNode("c", "X", map[string]string{"q": "9", "r": "7"}))

	_, err := Merge(context.Background(), g, []string{"a", "b", "c"}, nil)
	require.NoError(t, err)

	a, err := g.Node("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p": "1", "q": "5", "r": "7"}, a.Properties)
	assert.Equal(t, "X", a.Label)
}

func TestMerge_EdgePropertiesFilledNotOverwritten(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y"},
		[]string{"a", "b", "n"},
		[]testEdge{
			{id: "e1", typ: "T", start: "n", end: "a", props: map[string]string{"w": "1"}},
			{id: "e2", typ: "T", start: "n", end: "b", props: map[string]string{"w": "2", "k": "x"}},
		})

	_, err := Merge(context.Background(), g, []string{"a", "b"}, NopCommitter)
	require.NoError(t, err)

	e1, err := g.Edge("e1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"w": "1", "k": "x"}, e1.Properties)
	_, err = g.Edge("e2")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMerge_ThreeNodes(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "Species", "b": "Species", "c": "Species", "r": "Reaction", "k": "Compartment"},
		[]string{"a", "b", "c", "r", "k"},
		[]testEdge{
			{id: "e1", typ: "IN_COMPARTMENT", start: "a", end: "k"},
			{id: "e2", typ: "IN_COMPARTMENT", start: "b", end: "k"},
			{id: "e3", typ: "IN_COMPARTMENT", start: "c", end: "k"},
			{id: "e4", typ: "HAS_REACTANT", start: "r", end: "b"},
			{id: "e5", typ: "HAS_PRODUCT", start: "r", end: "c"},
			{id: "e6", typ: "HAS_REACTANT", start: "r", end: "c"},
		})
	before := g.NodeCount()

	_, err := Merge(context.Background(), g, []string{"a", "b", "c"}, NopCommitter)
	require.NoError(t, err)

	assert.Equal(t, before-2, g.NodeCount())
	for _, e := range g.Edges() {
		assert.NotContains(t, []string{"b", "c"}, e.StartNode, e.UUID)
		assert.NotContains(t, []string{"b", "c"}, e.EndNode, e.UUID)
	}

	out, _ := g.OutEdges("a")
	in, _ := g.InEdges("a")
	assertNoParallelDuplicates(t, out, func(e *Edge) string { return e.EndNode })
	assertNoParallelDuplicates(t, in, func(e *Edge) string { return e.StartNode })

	assert.Equal(t, []string{"e1"}, edgeIDs(out))
	assert.Equal(t, []string{"e4", "e5"}, edgeIDs(in))
}

func TestMerge_KeepsSelfLoops(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "c": "X"},
		[]string{"a", "b", "c"},
		[]testEdge{
			{id: "ba", typ: "T", start: "b", end: "a"},
			{id: "bc", typ: "U", start: "b", end: "c"},
			{id: "bb", typ: "V", start: "b", end: "b"},
		})

	_, err := Merge(context.Background(), g, []string{"a", "b", "c"}, NopCommitter)
	require.NoError(t, err)

	require.Equal(t, 3, g.EdgeCount())
	for _, id := range []string{"ba", "bc", "bb"} {
		e, err := g.Edge(id)
		require.NoError(t, err)
		assert.Equal(t, "a", e.StartNode, id)
		assert.Equal(t, "a", e.EndNode, id)
	}
}

func TestMerge_CommitOrder(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y"},
		[]string{"a", "b", "n"},
		[]testEdge{
			{id: "e1", typ: "T", start: "a", end: "n"},
			{id: "e2", typ: "T", start: "b", end: "n", props: map[string]string{"w": "1"}},
			{id: "e3", typ: "S", start: "n", end: "b"},
		})

	rec := &Recorder{}
	_, err := Merge(context.Background(), g, []string{"a", "b"}, rec)
	require.NoError(t, err)

	require.Len(t, rec.Changes, 4)
	assert.Equal(t, ChangeUpsertEdge, rec.Changes[0].Kind)
	assert.Equal(t, "e1", rec.Changes[0].Edge.UUID)
	assert.Equal(t, "1", rec.Changes[0].Edge.Properties["w"])

	assert.Equal(t, ChangeUpsertEdge, rec.Changes[1].Kind)
	assert.Equal(t, "e3", rec.Changes[1].Edge.UUID)
	assert.Equal(t, "n", rec.Changes[1].Edge.StartNode)
	assert.Equal(t, "a", rec.Changes[1].Edge.EndNode)

	assert.Equal(t, ChangeDeleteNode, rec.Changes[2].Kind)
	assert.Equal(t, "b", rec.Changes[2].NodeID)

	assert.Equal(t, ChangeUpsertNode, rec.Changes[3].Kind)
	assert.Equal(t, "a", rec.Changes[3].Node.UUID)
}

func TestMerge_CommitFailureStops(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y"},
		[]string{"a", "b", "n"},
		[]testEdge{
			{id: "e2", typ: "T", start: "b", end: "n"},
		})

	boom := errors.New("write failed")
	rec := &Recorder{Next: CommitterFunc(func(_ context.Context, c Change) error {
		if c.Kind == ChangeDeleteNode {
			return boom
		}
		return nil
	})}

	_, err := Merge(context.Background(), g, []string{"a", "b"}, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var commitErr *apperrors.ErrCommitFailed
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, "delete-node", commitErr.Change)
	assert.Equal(t, "b", commitErr.TargetID)
	assert.False(t, apperrors.IsRetryable(err))

	// the edge move went through before the failure
	require.Len(t, rec.Changes, 1)
	assert.Equal(t, "e2", rec.Changes[0].Edge.UUID)
}

func TestMerge_FewerThanTwo(t *testing.T) {
	g := buildGraph(t, map[string]string{"a": "X"}, []string{"a"}, nil)

	rec := &Recorder{}
	out, err := Merge(context.Background(), g, []string{"a"}, rec)
	require.NoError(t, err)
	assert.Same(t, g, out)
	assert.Empty(t, rec.Changes)

	_, err = Merge(context.Background(), g, []string{"missing"}, rec)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMerge_NotFound(t *testing.T) {
	g := buildGraph(t, map[string]string{"a": "X", "b": "X"}, []string{"a", "b"}, nil)

	_, err := Merge(context.Background(), g, []string{"a", "b", "missing"}, NopCommitter)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, g.HasNode("b"), "validation happens before any mutation")
}

func TestMerge_RepeatedIDs(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("a", "X", map[string]string{"p": "1"}))
	require.NoError(t, g.AddNode("b", "X", map[string]string{"q": "2"}))

	rec := &Recorder{}
	_, err := Merge(context.Background(), g, []string{"a", "b", "a", "b"}, rec)
	require.NoError(t, err)

	assert.True(t, g.HasNode("a"))
	assert.Equal(t, 1, g.NodeCount())
	assert.Len(t, rec.Changes, 2)
}

func TestMerge_SupersetOfProperties(t *testing.T) {
	g := New()
	original := map[string]string{"name": "glucose", "id": "s1"}
	require.NoError(t, g.AddNode("a", "Species", original))
	require.NoError(t, g.AddNode("b", "Species", map[string]string{"name": "Glc", "bqbiol_is": "http://identifiers.org/chebi/CHEBI:17234"}))

	_, err := Merge(context.Background(), g, []string{"a", "b"}, NopCommitter)
	require.NoError(t, err)

	a, _ := g.Node("a")
	for k, v := range original {
		assert.Equal(t, v, a.Properties[k])
	}
	assert.Contains(t, a.Properties, "bqbiol_is")
	assert.Equal(t, []string{"chebi:CHEBI:17234"}, a.Identifiers)
}

func assertNoParallelDuplicates(t *testing.T, edges []*Edge, neighbor func(*Edge) string) {
	t.Helper()
	seen := make(map[[2]string]bool)
	for _, e := range edges {
		key := [2]string{e.Type, neighbor(e)}
		assert.False(t, seen[key], "duplicate %s edge toward %s", key[0], key[1])
		seen[key] = true
	}
}
