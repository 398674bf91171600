package graph

import (
	"math"

	"go.uber.org/zap"

	apperrors "biograph/backend/pkg/errors"
	"biograph/backend/pkg/logger"
)

// ============================================================================
// Similarity Scorer
// ============================================================================

// Weights of the uncommon term per direction. Exact type matches weigh 3 in
// both directions.
const (
	outgoingUncommonWeight = 2
	incomingUncommonWeight = 1
)

// Similarity scores how alike the neighborhoods of the given nodes are, from 0
// to 100. It is the floored mean of the pairwise score over every unordered
// pair of uuids; fewer than two uuids score 100. Every uuid must be present.
func Similarity(g *Graph, uuids []string) (int, error) {
	for _, id := range uuids {
		if !g.HasNode(id) {
			return 0, apperrors.NewNotFound("node", id)
		}
	}
	if len(uuids) < 2 {
		return 100, nil
	}

	total := 0.0
	pairs := 0
	for i := 0; i < len(uuids); i++ {
		for j := i + 1; j < len(uuids); j++ {
			s, err := PairSimilarity(g, uuids[i], uuids[j])
			if err != nil {
				return 0, err
			}
			total += s
			pairs++
		}
	}

	score := int(math.Floor(total / float64(pairs)))
	if score < 0 {
		score = 0
	}
	return score, nil
}

// PairSimilarity returns the unrounded score of two nodes. A node compared with
// itself scores 100; two nodes without any neighbors score 0.
func PairSimilarity(g *Graph, a, b string) (float64, error) {
	if a == b {
		if !g.HasNode(a) {
			return 0, apperrors.NewNotFound("node", a)
		}
		return 100, nil
	}

	aOut, aIn, err := signatures(g, a)
	if err != nil {
		return 0, err
	}
	bOut, bIn, err := signatures(g, b)
	if err != nil {
		return 0, err
	}

	score, maxScore := compareGroups(aOut, bOut, outgoingUncommonWeight)
	inScore, inMax := compareGroups(aIn, bIn, incomingUncommonWeight)
	score += inScore
	maxScore += inMax

	if maxScore == 0 {
		logger.Get().Debug("No neighbors to compare", zap.String("a", a), zap.String("b", b))
		return 0, nil
	}

	s := float64(score) / float64(maxScore) * 100
	logger.Get().Debug("Pair similarity",
		zap.String("a", a),
		zap.String("b", b),
		zap.Float64("score", s),
	)
	return s, nil
}

// signatureGroup maps a neighbor label to the edge types seen toward or from
// neighbors of that label
type signatureGroup map[string][]string

func signatures(g *Graph, id string) (out, in signatureGroup, err error) {
	out, err = groupByLabel(g, id, g.OutEdges, func(e *Edge) string { return e.EndNode })
	if err != nil {
		return nil, nil, err
	}
	in, err = groupByLabel(g, id, g.InEdges, func(e *Edge) string { return e.StartNode })
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

func groupByLabel(g *Graph, id string, edgesOf func(string) ([]*Edge, error), neighbor func(*Edge) string) (signatureGroup, error) {
	edges, err := edgesOf(id)
	if err != nil {
		return nil, err
	}
	group := make(signatureGroup)
	for _, e := range edges {
		nbr, ok := g.nodes[neighbor(e)]
		if !ok {
			return nil, apperrors.NewDanglingReference(e.UUID, neighbor(e))
		}
		group[nbr.Label] = append(group[nbr.Label], e.Type)
	}
	return group, nil
}

// compareGroups accumulates score and max score over the union of labels
func compareGroups(a, b signatureGroup, uncommonWeight int) (score, maxScore int) {
	labels := make(map[string]struct{}, len(a)+len(b))
	for l := range a {
		labels[l] = struct{}{}
	}
	for l := range b {
		labels[l] = struct{}{}
	}

	for l := range labels {
		aTypes, bTypes := a[l], b[l]
		common := intersectionSize(aTypes, bTypes)
		aExtra := len(aTypes) - common
		bExtra := len(bTypes) - common
		uncommon := min(aExtra, bExtra)
		extra := aExtra - bExtra
		if extra < 0 {
			extra = -extra
		}

		score += 3*common + uncommonWeight*uncommon - extra
		maxScore += 3 * max(len(aTypes), len(bTypes))
	}
	return score, maxScore
}

// intersectionSize is the size of the multiset intersection of a and b
func intersectionSize(a, b []string) int {
	counts := make(map[string]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	common := 0
	for _, t := range b {
		if counts[t] > 0 {
			counts[t]--
			common++
		}
	}
	return common
}
