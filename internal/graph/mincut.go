package graph

import "math"

// MinimumCut computes the global weighted minimum cut of the graph using the
// Stoer-Wagner algorithm: repeated maximum-adjacency phases, each yielding a
// cut-of-the-phase, with the phase's final two supernodes merged until one
// remains. The smallest cut-of-the-phase is the global minimum.
//
// This is the exact edge-weight-sum minimum cut, not a spectral or
// normalized cut. Disconnected graphs yield cut value 0 at a component
// boundary. Degenerate arenas are defined: an empty graph returns (0, [],
// []) and a single node returns (0, [id], []).
//
// The two partitions always cover every node exactly once, each listed in
// arena order.
func (g *Graph) MinimumCut() (float64, []string, []string) {
	n := len(g.ids)
	switch n {
	case 0:
		return 0, []string{}, []string{}
	case 1:
		return 0, []string{g.ids[0]}, []string{}
	}

	// Working copies: supernode weights plus the original vertices merged
	// into each supernode.
	w := make([][]float64, n)
	for i := range w {
		w[i] = append([]float64(nil), g.weights[i]...)
	}
	groups := make([][]int, n)
	for i := range groups {
		groups[i] = []int{i}
	}
	active := make([]int, n)
	for i := range active {
		active[i] = i
	}

	bestCut := math.Inf(1)
	var bestGroup []int

	for len(active) > 1 {
		// Maximum-adjacency order: grow a set from an arbitrary start,
		// always absorbing the vertex most tightly connected to it. The
		// connectivity of the final vertex is the cut of the phase.
		added := make(map[int]bool, len(active))
		conn := make(map[int]float64, len(active))
		var prev, last int
		var cutOfPhase float64

		for range active {
			sel := -1
			for _, v := range active {
				if added[v] {
					continue
				}
				if sel == -1 || conn[v] > conn[sel] {
					sel = v
				}
			}
			added[sel] = true
			prev, last = last, sel
			cutOfPhase = conn[sel]
			for _, v := range active {
				if !added[v] {
					conn[v] += w[sel][v]
				}
			}
		}

		if cutOfPhase < bestCut {
			bestCut = cutOfPhase
			bestGroup = append([]int(nil), groups[last]...)
		}

		// Merge the phase's final vertex into its predecessor.
		for _, v := range active {
			if v == last || v == prev {
				continue
			}
			w[prev][v] += w[last][v]
			w[v][prev] = w[prev][v]
		}
		groups[prev] = append(groups[prev], groups[last]...)
		for i, v := range active {
			if v == last {
				active = append(active[:i], active[i+1:]...)
				break
			}
		}
	}

	inA := make([]bool, n)
	for _, v := range bestGroup {
		inA[v] = true
	}
	partA := make([]string, 0, len(bestGroup))
	partB := make([]string, 0, n-len(bestGroup))
	for i, id := range g.ids {
		if inA[i] {
			partA = append(partA, id)
		} else {
			partB = append(partB, id)
		}
	}
	return bestCut, partA, partB
}
