package erl

import (
	"math"

	"github.com/matzehuels/emerl/pkg/skeleton"
)

// EdgeLength returns the cached length of edge i, computing and caching
// the Euclidean distance between its endpoints when the cache is unset.
func EdgeLength(g *skeleton.Graph, i int) float64 {
	e, l := g.EdgeAt(i)
	if !skeleton.IsUnset(l) {
		return l
	}
	pu, pv := g.Position(e.U), g.Position(e.V)
	var sum float64
	for d := range 3 {
		diff := pu[d] - pv[d]
		sum += diff * diff
	}
	l = math.Sqrt(sum)
	// The edge exists by construction, so the error is always nil.
	_ = g.SetEdgeLength(e.U, e.V, l)
	return l
}

// SkeletonLengths returns the total edge length of every skeleton that
// has at least one edge. Unset edge lengths are computed from node
// positions and stored back into g. An edge's skeleton is that of its
// first endpoint.
func SkeletonLengths(g *skeleton.Graph) map[int64]float64 {
	out := make(map[int64]float64)
	for i := range g.EdgeCount() {
		e, _ := g.EdgeAt(i)
		out[g.SkeletonID(e.U)] += EdgeLength(g, i)
	}
	return out
}
