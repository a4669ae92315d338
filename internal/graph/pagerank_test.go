package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDamping = 0.85
	testTol     = 1e-6
	testMaxIter = 100
)

func TestPageRank_Degenerate(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		assert.Empty(t, New(nil).PageRank(testDamping, testTol, testMaxIter))
	})

	t.Run("single node holds all mass", func(t *testing.T) {
		scores := New([]string{"a"}).PageRank(testDamping, testTol, testMaxIter)
		require.Len(t, scores, 1)
		assert.InDelta(t, 1.0, scores[0], 1e-9)
	})
}

func TestPageRank_SymmetricRing(t *testing.T) {
	g := New([]string{"a", "b", "c", "d"})
	g.AddEdge("a", "b", 1)
	g.AddEdge("b", "c", 1)
	g.AddEdge("c", "d", 1)
	g.AddEdge("d", "a", 1)

	scores := g.PageRank(testDamping, testTol, testMaxIter)

	require.Len(t, scores, 4)
	for _, s := range scores {
		assert.InDelta(t, 0.25, s, 1e-6)
	}
}

func TestPageRank_StarCenterDominates(t *testing.T) {
	g := New([]string{"center", "a", "b", "c"})
	g.AddEdge("center", "a", 1)
	g.AddEdge("center", "b", 1)
	g.AddEdge("center", "c", 1)

	scores := g.PageRank(testDamping, testTol, testMaxIter)

	require.Len(t, scores, 4)
	center := scores[0]
	for _, leaf := range scores[1:] {
		assert.Greater(t, center, leaf)
	}

	var total float64
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		total += s
	}
	assert.InDelta(t, 1.0, total, 1e-6)
}

// TestPageRank_DanglingNode checks that an isolated node's mass is
// redistributed instead of leaking: with a connected pair plus one isolated
// node the fixed point is 1/(3-d) per pair member and (1-d)/(3-d) for the
// isolate.
func TestPageRank_DanglingNode(t *testing.T) {
	g := New([]string{"a", "b", "isolate"})
	g.AddEdge("a", "b", 1)

	scores := g.PageRank(testDamping, testTol, testMaxIter)

	require.Len(t, scores, 3)
	assert.InDelta(t, 1.0/(3.0-testDamping), scores[0], 1e-3)
	assert.InDelta(t, 1.0/(3.0-testDamping), scores[1], 1e-3)
	assert.InDelta(t, (1.0-testDamping)/(3.0-testDamping), scores[2], 1e-3)

	var total float64
	for _, s := range scores {
		total += s
	}
	assert.InDelta(t, 1.0, total, 1e-6)
}

func TestPageRank_WeightsBias(t *testing.T) {
	// b is tied to a with 10x the weight of c; a's mass should flow
	// overwhelmingly to b.
	g := New([]string{"a", "b", "c"})
	g.AddEdge("a", "b", 1.0)
	g.AddEdge("a", "c", 0.1)

	scores := g.PageRank(testDamping, testTol, testMaxIter)

	require.Len(t, scores, 3)
	assert.Greater(t, scores[1], scores[2])
}
