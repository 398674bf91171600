package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"biograph/backend/internal/database"
	"biograph/backend/internal/graph"
	apperrors "biograph/backend/pkg/errors"
	"biograph/backend/pkg/logger"
)

// Store is the persistence the handlers need. *database.Repository
// implements it.
type Store interface {
	graph.Committer
	NodesWithNeighbours(ctx context.Context, uuids []string) (*graph.Graph, error)
	Graph(ctx context.Context) (*graph.Graph, error)
	Nodes(ctx context.Context) ([]*graph.Node, error)
	Node(ctx context.Context, uuid string) (*graph.Node, error)
	Relationships(ctx context.Context) ([]*graph.Edge, error)
	Relationship(ctx context.Context, uuid string) (*graph.Edge, error)
	AssignMissingUUIDs(ctx context.Context) (database.UUIDAssignment, error)
}

// Handler serves the merge and model API
type Handler struct {
	store      Store
	candidates graph.CandidateOptions
	logger     *zap.Logger
}

// NewHandler creates a handler. opts supplies the defaults for candidate search.
func NewHandler(store Store, opts graph.CandidateOptions) *Handler {
	return &Handler{
		store:      store,
		candidates: opts,
		logger:     logger.Get(),
	}
}

// Register mounts every route on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		merge := api.Group("/merge")
		merge.POST("/nodes", h.mergeNodes)
		merge.POST("/similarity", h.similarity)
		merge.GET("/identifier-frequency", h.identifierFrequency)
		merge.GET("/candidates", h.candidateList)

		api.GET("/model", h.model)
		api.POST("/model/assign-uuids", h.assignUUIDs)

		api.GET("/node/all", h.nodes)
		api.GET("/node/by-id/:uuid", h.node)
		api.GET("/relationship/all", h.relationships)
		api.GET("/relationship/by-id/:uuid", h.relationship)

		api.GET("/subgraph/by-identifier", h.subgraphByIdentifier)
	}
}

func (h *Handler) mergeNodes(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ctx := c.Request.Context()

	g, err := h.store.NodesWithNeighbours(ctx, req.UUIDs)
	if err != nil {
		h.respondError(c, "Failed to load nodes", err)
		return
	}

	// without Next the recorder only plans the changes
	rec := &graph.Recorder{}
	if req.Apply {
		rec.Next = h.store
	}

	merged, err := graph.Merge(ctx, g, req.UUIDs, rec)
	if err != nil {
		h.respondError(c, "Failed to merge nodes", err, zap.Int("committed", len(rec.Changes)))
		return
	}

	changes := rec.Changes
	if changes == nil {
		changes = []graph.Change{}
	}
	c.JSON(http.StatusOK, MergeResponse{Graph: toGraphResponse(merged), Changes: changes})
}

func (h *Handler) similarity(c *gin.Context) {
	var req SimilarityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	g, err := h.store.NodesWithNeighbours(c.Request.Context(), req.UUIDs)
	if err != nil {
		h.respondError(c, "Failed to load nodes", err)
		return
	}

	score, err := graph.Similarity(g, req.UUIDs)
	if err != nil {
		h.respondError(c, "Failed to score nodes", err)
		return
	}
	c.JSON(http.StatusOK, SimilarityResponse{Score: score})
}

func (h *Handler) identifierFrequency(c *gin.Context) {
	g, err := h.store.Graph(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to load graph", err)
		return
	}
	c.JSON(http.StatusOK, graph.IdentifierFrequencies(g))
}

func (h *Handler) candidateList(c *gin.Context) {
	opts := h.candidates
	if raw := c.Query("min_score"); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "min_score must be an integer"})
			return
		}
		opts.MinScore = score
	}
	ctx := c.Request.Context()

	g, err := h.store.Graph(ctx)
	if err != nil {
		h.respondError(c, "Failed to load graph", err)
		return
	}

	candidates, err := graph.DuplicateCandidates(ctx, g, opts)
	if err != nil {
		h.respondError(c, "Failed to find duplicate candidates", err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

func (h *Handler) model(c *gin.Context) {
	g, err := h.store.Graph(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to load graph", err)
		return
	}
	c.JSON(http.StatusOK, toGraphResponse(g))
}

func (h *Handler) assignUUIDs(c *gin.Context) {
	counts, err := h.store.AssignMissingUUIDs(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to assign uuids", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) nodes(c *gin.Context) {
	nodes, err := h.store.Nodes(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list nodes", err)
		return
	}
	c.JSON(http.StatusOK, nodes)
}

func (h *Handler) node(c *gin.Context) {
	n, err := h.store.Node(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		h.respondError(c, "Failed to fetch node", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) relationships(c *gin.Context) {
	edges, err := h.store.Relationships(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list relationships", err)
		return
	}
	c.JSON(http.StatusOK, edges)
}

func (h *Handler) relationship(c *gin.Context) {
	e, err := h.store.Relationship(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		h.respondError(c, "Failed to fetch relationship", err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) subgraphByIdentifier(c *gin.Context) {
	identifier := graph.NormalizeIdentifier(c.Query("identifier"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "identifier is required"})
		return
	}

	g, err := h.store.Graph(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to load graph", err)
		return
	}

	sub, err := graph.Neighbourhood(g, graph.NodesWithIdentifier(g, identifier))
	if err != nil {
		h.respondError(c, "Failed to build subgraph", err)
		return
	}
	c.JSON(http.StatusOK, toGraphResponse(sub))
}

// respondError maps err onto a status code. Unexpected errors and failed
// commits are logged; a failed commit is never reported as its cause.
func (h *Handler) respondError(c *gin.Context, msg string, err error, fields ...zap.Field) {
	switch {
	case apperrors.IsCommitFailed(err):
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case apperrors.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
	}
}
