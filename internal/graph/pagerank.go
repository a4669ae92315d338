package graph

import "math"

// PageRank computes importance scores over the graph's weighted edges using
// damped power iteration. Transition probabilities are edge weights
// normalized per source node; the rank mass of dangling nodes (no incident
// edges) is redistributed uniformly each round. Iteration stops when the L1
// residual drops below tol or after maxIter rounds.
//
// Scores are returned in arena order, are non-negative, and sum to 1 for any
// non-empty graph. An empty graph returns an empty slice.
func (g *Graph) PageRank(damping, tol float64, maxIter int) []float64 {
	n := len(g.ids)
	if n == 0 {
		return []float64{}
	}

	outWeight := make([]float64, n)
	for i := range g.weights {
		for j, wij := range g.weights[i] {
			if j != i {
				outWeight[i] += wij
			}
		}
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / float64(n)
	}
	next := make([]float64, n)

	for iter := 0; iter < maxIter; iter++ {
		var dangling float64
		for i, ow := range outWeight {
			if ow == 0 {
				dangling += scores[i]
			}
		}
		base := (1-damping)/float64(n) + damping*dangling/float64(n)

		for j := 0; j < n; j++ {
			var sum float64
			for i := 0; i < n; i++ {
				if outWeight[i] > 0 && g.weights[i][j] > 0 {
					sum += scores[i] * g.weights[i][j] / outWeight[i]
				}
			}
			next[j] = base + damping*sum
		}

		var residual float64
		for i := range scores {
			residual += math.Abs(next[i] - scores[i])
		}
		scores, next = next, scores
		if residual < tol {
			break
		}
	}

	return scores
}
