// Package graph implements the in-process engine for pattern similarity
// graphs: thresholded edge construction from embeddings, global weighted
// minimum cut (Stoer-Wagner), and weighted PageRank.
//
// The engine holds an arena of nodes with integer indices and a symmetric
// weight matrix. It performs no I/O; callers load patterns from the store,
// build a graph, and read results back out. All operations are bounded by
// the node count, so a graph built from one domain snapshot is safe to use
// concurrently for reads.
package graph

// Graph is a weighted undirected graph over pattern IDs.
//
// Node identity is positional: the arena maps each ID to an integer index
// once at construction, and algorithms operate on indices. Edge weights
// accumulate symmetrically.
type Graph struct {
	ids     []string
	index   map[string]int
	weights [][]float64
}

// New creates an empty graph over the given node IDs.
func New(ids []string) *Graph {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	weights := make([][]float64, len(ids))
	for i := range weights {
		weights[i] = make([]float64, len(ids))
	}
	return &Graph{
		ids:     append([]string(nil), ids...),
		index:   index,
		weights: weights,
	}
}

// Size returns the number of nodes.
func (g *Graph) Size() int {
	return len(g.ids)
}

// Nodes returns the node IDs in arena order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.ids...)
}

// AddEdge accumulates weight on the undirected edge between two nodes.
// Unknown endpoints and self edges are ignored.
func (g *Graph) AddEdge(source, target string, weight float64) {
	i, ok := g.index[source]
	if !ok {
		return
	}
	j, ok := g.index[target]
	if !ok || i == j {
		return
	}
	g.weights[i][j] += weight
	g.weights[j][i] += weight
}

// Weight returns the edge weight between two nodes, 0 if absent.
func (g *Graph) Weight(source, target string) float64 {
	i, ok := g.index[source]
	if !ok {
		return 0
	}
	j, ok := g.index[target]
	if !ok {
		return 0
	}
	return g.weights[i][j]
}
