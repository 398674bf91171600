package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "biograph/backend/pkg/errors"
)

func TestSimilarity_SingleNode(t *testing.T) {
	g := buildGraph(t, map[string]string{"x": "Species"}, []string{"x"}, nil)

	score, err := Similarity(g, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}

func TestSimilarity_SameNode(t *testing.T) {
	g := buildGraph(t, map[string]string{"a": "X", "n": "Y"}, []string{"a", "n"}, []testEdge{
		{id: "e1", typ: "T", start: "a", end: "n"},
	})

	score, err := Similarity(g, []string{"a", "a"})
	require.NoError(t, err)
	assert.Equal(t, 100, score)

	// no neighbors at all
	score, err = Similarity(g, []string{"n", "n"})
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}

func TestSimilarity_IdenticalNeighborhoods(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y"},
		[]string{"a", "b", "n"},
		[]testEdge{
			{id: "e1", typ: "T", start: "a", end: "n"},
			{id: "e2", typ: "T", start: "b", end: "n"},
		})

	score, err := Similarity(g, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}

func TestSimilarity_Symmetric(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y", "m": "Y"},
		[]string{"a", "b", "n", "m"},
		[]testEdge{
			{id: "e1", typ: "T", start: "a", end: "n"},
			{id: "e2", typ: "T", start: "a", end: "m"},
			{id: "e3", typ: "U", start: "a", end: "n"},
			{id: "e4", typ: "T", start: "b", end: "n"},
		})

	ab, err := Similarity(g, []string{"a", "b"})
	require.NoError(t, err)
	ba, err := Similarity(g, []string{"b", "a"})
	require.NoError(t, err)

	// common 1, a_extra 2, b_extra 0: (3 - 2) / 9
	assert.Equal(t, 11, ab)
	assert.Equal(t, ab, ba)
}

func TestPairSimilarity_UncommonWeights(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y"},
		[]string{"a", "b", "n"},
		[]testEdge{
			{id: "e1", typ: "T", start: "a", end: "n"},
			{id: "e2", typ: "U", start: "b", end: "n"},
		})

	s, err := PairSimilarity(g, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 200.0/3.0, s, 1e-9)

	g = buildGraph(t,
		map[string]string{"a": "X", "b": "X", "n": "Y"},
		[]string{"a", "b", "n"},
		[]testEdge{
			{id: "e1", typ: "T", start: "n", end: "a"},
			{id: "e2", typ: "U", start: "n", end: "b"},
		})

	s, err = PairSimilarity(g, "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 100.0/3.0, s, 1e-9)
}

func TestSimilarity_MeanOverAllPairsAndClamp(t *testing.T) {
	g := buildGraph(t,
		map[string]string{"a": "X", "b": "X", "c": "X", "n": "Y", "z": "Z"},
		[]string{"a", "b", "c", "n", "z"},
		[]testEdge{
			{id: "e1", typ: "T", start: "a", end: "n"},
			{id: "e2", typ: "T", start: "b", end: "n"},
			{id: "e3", typ: "T", start: "c", end: "z"},
		})

	// pair(a,c) = pair(b,c) = -2/6, pair(a,b) = 1
	score, err := Similarity(g, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 11, score)

	score, err = Similarity(g, []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestSimilarity_NoNeighbors(t *testing.T) {
	g := buildGraph(t, map[string]string{"a": "X", "b": "X"}, []string{"a", "b"}, nil)

	score, err := Similarity(g, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestSimilarity_NotFound(t *testing.T) {
	g := buildGraph(t, map[string]string{"a": "X"}, []string{"a"}, nil)

	_, err := Similarity(g, []string{"a", "missing"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = Similarity(g, []string{"missing"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIntersectionSize(t *testing.T) {
	assert.Equal(t, 2, intersectionSize([]string{"T", "T", "U"}, []string{"T", "T", "T"}))
	assert.Equal(t, 0, intersectionSize(nil, []string{"T"}))
	assert.Equal(t, 1, intersectionSize([]string{"U", "T"}, []string{"T"}))
}
