package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"biograph/backend/internal/database"
	"biograph/backend/internal/graph"
	apperrors "biograph/backend/pkg/errors"
)

const glucose = "http://identifiers.org/chebi/CHEBI:17234"

// memoryStore serves copies of an in-memory graph and records commits
type memoryStore struct {
	g         *graph.Graph
	committed []graph.Change
	failOn    graph.ChangeKind
	failWith  error
}

func newMemoryStore(t *testing.T) *memoryStore {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.AddNode("a", "Species", map[string]string{"name": "glucose", "bqbiol_is": glucose}))
	require.NoError(t, g.AddNode("b", "Species", map[string]string{"name": "Glc", "bqbiol_is": glucose}))
	require.NoError(t, g.AddNode("k", "Compartment", map[string]string{"name": "cytosol"}))
	require.NoError(t, g.AddEdge("e1", "IN_COMPARTMENT", "a", "k", nil))
	require.NoError(t, g.AddEdge("e2", "IN_COMPARTMENT", "b", "k", map[string]string{"w": "1"}))
	return &memoryStore{g: g}
}

func (s *memoryStore) NodesWithNeighbours(_ context.Context, uuids []string) (*graph.Graph, error) {
	var present []string
	for _, id := range uuids {
		if s.g.HasNode(id) {
			present = append(present, id)
		}
	}
	return graph.Neighbourhood(s.g, present)
}

func (s *memoryStore) Graph(context.Context) (*graph.Graph, error) {
	return graph.FromEntities(s.g.Nodes(), s.g.Edges())
}

func (s *memoryStore) Nodes(context.Context) ([]*graph.Node, error) { return s.g.Nodes(), nil }

func (s *memoryStore) Node(_ context.Context, id string) (*graph.Node, error) { return s.g.Node(id) }

func (s *memoryStore) Relationships(context.Context) ([]*graph.Edge, error) { return s.g.Edges(), nil }

func (s *memoryStore) Relationship(_ context.Context, id string) (*graph.Edge, error) {
	return s.g.Edge(id)
}

func (s *memoryStore) AssignMissingUUIDs(context.Context) (database.UUIDAssignment, error) {
	return database.UUIDAssignment{Nodes: 2, Relationships: 1}, nil
}

func (s *memoryStore) Commit(_ context.Context, c graph.Change) error {
	if c.Kind == s.failOn {
		if s.failWith != nil {
			return s.failWith
		}
		return errors.New("connection reset")
	}
	s.committed = append(s.committed, c)
	return nil
}

func setupRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(store, graph.CandidateOptions{Workers: 2}).Register(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, setupRouter(newMemoryStore(t)), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMergeNodes_DryRun(t *testing.T) {
	store := newMemoryStore(t)
	r := setupRouter(store)

	w := do(t, r, http.MethodPost, "/api/merge/nodes", MergeRequest{UUIDs: []string{"a", "b"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp MergeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Graph.Nodes, 2)
	assert.Equal(t, "a", resp.Graph.Nodes[0].UUID)
	assert.Equal(t, "k", resp.Graph.Nodes[1].UUID)
	require.Len(t, resp.Graph.Relationships, 1)
	assert.Equal(t, "e1", resp.Graph.Relationships[0].UUID)
	assert.Equal(t, "1", resp.Graph.Relationships[0].Properties["w"])

	require.Len(t, resp.Changes, 3)
	assert.Equal(t, graph.ChangeUpsertEdge, resp.Changes[0].Kind)
	assert.Equal(t, graph.ChangeDeleteNode, resp.Changes[1].Kind)
	assert.Equal(t, graph.ChangeUpsertNode, resp.Changes[2].Kind)

	assert.Empty(t, store.committed, "dry run never reaches the store")
	assert.True(t, store.g.HasNode("b"))
}

func TestMergeNodes_Apply(t *testing.T) {
	store := newMemoryStore(t)
	r := setupRouter(store)

	w := do(t, r, http.MethodPost, "/api/merge/nodes", MergeRequest{UUIDs: []string{"a", "b"}, Apply: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, store.committed, 3)
	assert.Equal(t, "b", store.committed[1].NodeID)
}

func TestMergeNodes_Errors(t *testing.T) {
	store := newMemoryStore(t)
	r := setupRouter(store)

	w := do(t, r, http.MethodPost, "/api/merge/nodes", MergeRequest{UUIDs: []string{"a", "missing"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/merge/nodes", map[string]any{"uuids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/merge/nodes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.failOn = graph.ChangeDeleteNode
	w = do(t, r, http.MethodPost, "/api/merge/nodes", MergeRequest{UUIDs: []string{"a", "b"}, Apply: true})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, store.committed, 1)
}

func TestMergeNodes_PartialCommitIsServerError(t *testing.T) {
	store := newMemoryStore(t)
	// the node vanished from the database between load and delete
	store.failOn = graph.ChangeDeleteNode
	store.failWith = apperrors.NewNotFound("node", "b")

	core, logs := observer.New(zap.ErrorLevel)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(store, graph.CandidateOptions{Workers: 1})
	h.logger = zap.New(core)
	h.Register(r)

	w := do(t, r, http.MethodPost, "/api/merge/nodes", MergeRequest{UUIDs: []string{"a", "b"}, Apply: true})
	assert.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "commit delete-node b failed")
	require.Len(t, store.committed, 1, "the edge upsert went through first")

	entries := logs.FilterMessage("Failed to merge nodes").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["committed"])

	store.failWith = apperrors.NewDanglingReference("e1", "k")
	store.committed = nil
	w = do(t, r, http.MethodPost, "/api/merge/nodes", MergeRequest{UUIDs: []string{"a", "b"}, Apply: true})
	assert.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
}

func TestSimilarity(t *testing.T) {
	r := setupRouter(newMemoryStore(t))

	w := do(t, r, http.MethodPost, "/api/merge/similarity", SimilarityRequest{UUIDs: []string{"a", "b"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"score":100}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/merge/similarity", SimilarityRequest{UUIDs: []string{"zzz"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIdentifierFrequency(t *testing.T) {
	r := setupRouter(newMemoryStore(t))

	w := do(t, r, http.MethodGet, "/api/merge/identifier-frequency", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"identifier":"chebi:CHEBI:17234","frequency":2}]`, w.Body.String())
}

func TestCandidates(t *testing.T) {
	r := setupRouter(newMemoryStore(t))

	w := do(t, r, http.MethodGet, "/api/merge/candidates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var candidates []graph.Candidate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"a", "b"}, candidates[0].UUIDs)
	assert.Equal(t, 100, candidates[0].Score)

	w = do(t, r, http.MethodGet, "/api/merge/candidates?min_score=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelAndLookups(t *testing.T) {
	r := setupRouter(newMemoryStore(t))

	w := do(t, r, http.MethodGet, "/api/model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var model GraphResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &model))
	assert.Len(t, model.Nodes, 3)
	assert.Len(t, model.Relationships, 2)

	w = do(t, r, http.MethodGet, "/api/node/by-id/k", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var n graph.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, "Compartment", n.Label)

	w = do(t, r, http.MethodGet, "/api/node/by-id/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/relationship/by-id/e2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var e graph.Edge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, "b", e.StartNode)

	w = do(t, r, http.MethodGet, "/api/relationship/all", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/node/all", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/model/assign-uuids", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"nodes":2,"relationships":1}`, w.Body.String())
}

func TestSubgraphByIdentifier(t *testing.T) {
	r := setupRouter(newMemoryStore(t))

	w := do(t, r, http.MethodGet, "/api/subgraph/by-identifier?identifier="+url.QueryEscape(glucose), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sub GraphResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Len(t, sub.Nodes, 3)
	assert.Len(t, sub.Relationships, 2)

	w = do(t, r, http.MethodGet, "/api/subgraph/by-identifier", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
