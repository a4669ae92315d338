package graph

import (
	"math"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// Cosine returns the cosine similarity of two embedding vectors.
//
// Returns 0 for mismatched lengths or zero-magnitude vectors, so degenerate
// embeddings never produce edges.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		magA += av * av
		magB += bv * bv
	}

	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (magA * magB)
}

// BuildEdges computes pairwise cosine similarity among the given patterns
// and returns every edge whose similarity meets the threshold.
//
// The scan is O(n²·d) over the snapshot; callers shard by domain to bound
// cost. Raising the threshold can only shrink the result set.
func BuildEdges(patterns []*pattern.Pattern, threshold float64) []pattern.SimilarityEdge {
	edges := make([]pattern.SimilarityEdge, 0)
	for i := 0; i < len(patterns); i++ {
		for j := i + 1; j < len(patterns); j++ {
			sim := Cosine(patterns[i].Embedding, patterns[j].Embedding)
			if sim >= threshold {
				edges = append(edges, pattern.SimilarityEdge{
					SourceID:   patterns[i].ID,
					TargetID:   patterns[j].ID,
					Domain:     patterns[i].Domain,
					Similarity: sim,
				})
			}
		}
	}
	return edges
}

// NewSimilarityGraph builds the weighted graph over the given patterns from
// their thresholded similarity edges.
func NewSimilarityGraph(patterns []*pattern.Pattern, threshold float64) *Graph {
	ids := make([]string, len(patterns))
	for i, p := range patterns {
		ids[i] = p.ID
	}
	g := New(ids)
	for _, e := range BuildEdges(patterns, threshold) {
		g.AddEdge(e.SourceID, e.TargetID, e.Similarity)
	}
	return g
}

// MeanPairwiseSimilarity returns the average cosine similarity over all
// pattern pairs, 1.0 for singletons. Used for cluster coherence scores.
func MeanPairwiseSimilarity(patterns []*pattern.Pattern) float64 {
	if len(patterns) <= 1 {
		return 1.0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(patterns); i++ {
		for j := i + 1; j < len(patterns); j++ {
			sum += Cosine(patterns[i].Embedding, patterns[j].Embedding)
			pairs++
		}
	}
	return sum / float64(pairs)
}
