package skeleton

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// Graph is a fixed-topology collection of skeletons.
//
// The zero value is not usable - use [New], [FromSkeletons] or [Builder].
// Reads are safe for concurrent use; [Graph.SetEdgeLength] is not safe to
// call concurrently with other methods.
type Graph struct {
	nodes *NodeTable
	edges *EdgeTable

	colSkeleton int
	colZYX      [3]int
}

// New assembles a graph from a node table and an edge table. The node table
// must declare the [DefaultAttributes] and the edge table must have been
// created for the same node count.
func New(nodes *NodeTable, edges *EdgeTable) (*Graph, error) {
	if nodes == nil || edges == nil {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "node and edge tables are required")
	}
	if edges.Nodes() != nodes.Len() {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput,
			"edge table sized for %d nodes, node table has %d", edges.Nodes(), nodes.Len())
	}
	g := &Graph{nodes: nodes, edges: edges}
	var ok bool
	if g.colSkeleton, ok = nodes.Column(AttrSkeletonID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, AttrSkeletonID)
	}
	for i, a := range []string{AttrZ, AttrY, AttrX} {
		if g.colZYX[i], ok = nodes.Column(a); !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, a)
		}
	}
	return g, nil
}

// NodeTable returns the underlying node table.
func (g *Graph) NodeTable() *NodeTable { return g.nodes }

// EdgeTable returns the underlying edge table.
func (g *Graph) EdgeTable() *EdgeTable { return g.edges }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return g.nodes.Len() }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edges.Len() }

// SkeletonID returns the skeleton that owns node n.
func (g *Graph) SkeletonID(n int) int64 { return g.nodes.Value(n, g.colSkeleton) }

// Voxel returns the integer (z, y, x) coordinate of node n.
func (g *Graph) Voxel(n int) [3]int64 {
	return [3]int64{
		g.nodes.Value(n, g.colZYX[0]),
		g.nodes.Value(n, g.colZYX[1]),
		g.nodes.Value(n, g.colZYX[2]),
	}
}

// Position returns the (z, y, x) coordinate of node n as floats.
func (g *Graph) Position(n int) [3]float64 {
	v := g.Voxel(n)
	return [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}
}

// Attr returns the named attribute of node n.
func (g *Graph) Attr(n int, name string) (int64, bool) {
	c, ok := g.nodes.Column(name)
	if !ok {
		return 0, false
	}
	return g.nodes.Value(n, c), true
}

// NodeAttrs returns every attribute of node n keyed by name.
func (g *Graph) NodeAttrs(n int) map[string]int64 {
	out := make(map[string]int64, len(g.nodes.attrs))
	for c, a := range g.nodes.attrs {
		out[a] = g.nodes.Value(n, c)
	}
	return out
}

// Nodes iterates node indices in row order.
func (g *Graph) Nodes() iter.Seq[int] {
	return func(yield func(int) bool) {
		for n := range g.nodes.Len() {
			if !yield(n) {
				return
			}
		}
	}
}

// NodesWithAttrs iterates nodes in row order together with their attributes.
func (g *Graph) NodesWithAttrs() iter.Seq2[int, map[string]int64] {
	return func(yield func(int, map[string]int64) bool) {
		for n := range g.nodes.Len() {
			if !yield(n, g.NodeAttrs(n)) {
				return
			}
		}
	}
}

// Edges iterates canonical edges in insertion order.
func (g *Graph) Edges() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for i := range g.edges.Len() {
			e, _ := g.edges.At(i)
			if !yield(e) {
				return
			}
		}
	}
}

// EdgesWithLength iterates canonical edges with their current length.
func (g *Graph) EdgesWithLength() iter.Seq2[Edge, float64] {
	return func(yield func(Edge, float64) bool) {
		for i := range g.edges.Len() {
			if !yield(g.edges.At(i)) {
				return
			}
		}
	}
}

// EdgeAt returns the i-th edge in iteration order and its length.
func (g *Graph) EdgeAt(i int) (Edge, float64) { return g.edges.At(i) }

// HasEdge reports whether (u, v) is an edge, in either orientation.
func (g *Graph) HasEdge(u, v int) bool {
	_, ok := g.edges.Lookup(u, v)
	return ok
}

// EdgeLength returns the stored length of (u, v), which may be [UnsetLength].
func (g *Graph) EdgeLength(u, v int) (float64, bool) { return g.edges.Lookup(u, v) }

// SetEdgeLength stores the length of the existing edge (u, v). The key is
// canonicalized; pairs that are not edges return [ErrEdgeNotFound].
func (g *Graph) SetEdgeLength(u, v int, length float64) error {
	i, ok := g.edges.index[NewEdge(u, v)]
	if !ok {
		return fmt.Errorf("%w: (%d, %d)", ErrEdgeNotFound, u, v)
	}
	g.edges.lengths[i] = length
	return nil
}

// SkeletonIDs returns the distinct skeleton IDs in ascending order.
func (g *Graph) SkeletonIDs() []int64 {
	seen := make(map[int64]struct{})
	for n := range g.nodes.Len() {
		seen[g.SkeletonID(n)] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Resolution returns the scale the stored coordinates were built with.
func (g *Graph) Resolution() [3]int64 { return g.nodes.Resolution() }

// Positions returns the integer (z, y, x) coordinate of every node in row
// order.
func (g *Graph) Positions() [][3]int64 {
	out := make([][3]int64, g.nodes.Len())
	for n := range out {
		out[n] = g.Voxel(n)
	}
	return out
}
