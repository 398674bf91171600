package api

import "biograph/backend/internal/graph"

// MergeRequest selects the nodes to merge. The first uuid survives.
type MergeRequest struct {
	UUIDs []string `json:"uuids" binding:"required,min=1"`
	Apply bool     `json:"apply"`
}

// SimilarityRequest selects the nodes to score
type SimilarityRequest struct {
	UUIDs []string `json:"uuids" binding:"required,min=1"`
}

// GraphResponse is the wire form of a graph
type GraphResponse struct {
	Nodes         []*graph.Node `json:"nodes"`
	Relationships []*graph.Edge `json:"relationships"`
}

// MergeResponse carries the merged neighborhood and the changes that were
// committed, or would be with apply set
type MergeResponse struct {
	Graph   GraphResponse  `json:"graph"`
	Changes []graph.Change `json:"changes"`
}

// SimilarityResponse carries the aggregate similarity score
type SimilarityResponse struct {
	Score int `json:"score"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func toGraphResponse(g *graph.Graph) GraphResponse {
	return GraphResponse{Nodes: g.Nodes(), Relationships: g.Edges()}
}
