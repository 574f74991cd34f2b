// Package skeleton provides a compact, fixed-topology graph store for
// ground-truth skeletons.
//
// Thousands of skeletons are held as one [Graph]: a dense [NodeTable] with
// one row per node and one integer column per declared attribute, and a
// sparse symmetric [EdgeTable] mapping canonical node pairs to a single
// floating-point length. The node and edge sets are fixed once the graph
// has been constructed; only edge lengths can change afterwards.
//
// # Nodes
//
// A node is identified by its row index (0..N-1). Every graph carries at
// least the attributes [AttrSkeletonID], [AttrZ], [AttrY] and [AttrX].
// Attribute columns are stored sorted by name, and every value must fit
// the table's declared [DType]:
//
//	g.SkeletonID(n)  // owning skeleton
//	g.Position(n)    // [z, y, x]
//	g.NodeAttrs(n)   // map of every attribute
//
// # Edges
//
// An [Edge] is an unordered node pair canonicalized so that U <= V. Every
// accessor canonicalizes its arguments, so g.EdgeLength(3, 1) and
// g.EdgeLength(1, 3) read the same entry. Lengths start out as
// [UnsetLength] when the caller does not know them; the erl package fills
// and caches them on first use.
//
// Iteration order is stable: nodes in row order, edges in insertion order.
//
// # Building
//
// [FromSkeletons] concatenates raw per-skeleton vertex and edge arrays into
// one graph and reports skeletons it skipped. [Builder] accumulates nodes
// and edges from any other source.
//
// # Persistence
//
// A graph is persisted as two independent artifacts, the node table and
// the edge table:
//
//	err := g.Save(nodeFile, edgeFile)
//	g2, err := skeleton.Load(nodeFile, edgeFile)
//
// Reloading yields bit-identical node attributes and identical lengths for
// every stored edge.
package skeleton
