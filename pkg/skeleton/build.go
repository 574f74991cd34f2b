package skeleton

import (
	"fmt"
	"math"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// DefaultDType is the node table width used when none is specified.
const DefaultDType = Uint32

// Builder accumulates nodes and edges from an arbitrary graph source.
// Node indices are assigned in insertion order starting at zero.
//
// The zero value is not usable - use [NewBuilder].
type Builder struct {
	attrs   []string
	dtype   DType
	columns map[string][]int64
	edges   []pendingEdge
}

type pendingEdge struct {
	u, v   int
	length float64
}

// NewBuilder creates a builder for the given attributes and dtype. The
// [DefaultAttributes] are added when missing; a zero dtype selects
// [DefaultDType].
func NewBuilder(attrs []string, dtype DType) *Builder {
	if dtype == 0 {
		dtype = DefaultDType
	}
	b := &Builder{dtype: dtype, columns: make(map[string][]int64)}
	for _, a := range append(append([]string{}, DefaultAttributes...), attrs...) {
		if _, ok := b.columns[a]; !ok {
			b.columns[a] = nil
			b.attrs = append(b.attrs, a)
		}
	}
	return b
}

// AddNode appends a node and returns its index. Every declared attribute
// must be present in values; extra keys are ignored.
func (b *Builder) AddNode(values map[string]int64) (int, error) {
	for _, a := range b.attrs {
		if _, ok := values[a]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingAttribute, a)
		}
	}
	for _, a := range b.attrs {
		b.columns[a] = append(b.columns[a], values[a])
	}
	return len(b.columns[AttrSkeletonID]) - 1, nil
}

// AddEdge records an edge whose length is not yet known.
func (b *Builder) AddEdge(u, v int) { b.AddEdgeWithLength(u, v, UnsetLength) }

// AddEdgeWithLength records an edge with a known length.
func (b *Builder) AddEdgeWithLength(u, v int, length float64) {
	b.edges = append(b.edges, pendingEdge{u: u, v: v, length: length})
}

// Build validates the accumulated data and returns the graph. Attribute
// values that do not fit the dtype are rejected here.
func (b *Builder) Build() (*Graph, error) {
	nodes, err := NewNodeTable(b.attrs, b.dtype, b.columns)
	if err != nil {
		return nil, err
	}
	edges := NewEdgeTable(nodes.Len())
	for _, e := range b.edges {
		if err := edges.Add(e.u, e.v, e.length); err != nil {
			return nil, err
		}
	}
	return New(nodes, edges)
}

// Skeleton is one raw ground-truth skeleton: vertex coordinates and edges
// between local vertex indices.
type Skeleton struct {
	ID       int64
	Vertices [][3]int64 // (z, y, x)
	Edges    [][2]int
}

// BuildOptions configures [FromSkeletons].
type BuildOptions struct {
	// Resolution scales (z, y, x) coordinates per axis. The zero value
	// leaves coordinates unscaled.
	Resolution [3]int64

	// DType is the node table width. Zero selects DefaultDType.
	DType DType
}

// BuildStats summarizes a [FromSkeletons] run.
type BuildStats struct {
	Skeletons int     // skeletons included in the graph
	Nodes     int     // total nodes
	Edges     int     // total edges
	Skipped   []int64 // IDs of skeletons dropped for having no edges
}

// FromSkeletons concatenates skeletons into one graph. Vertex indices of
// each skeleton are offset by the number of nodes already added, and every
// edge length is the Euclidean distance between its scaled endpoints.
//
// Skeletons without edges contribute no nodes at all; their IDs are
// reported in BuildStats.Skipped.
func FromSkeletons(skels []Skeleton, opts BuildOptions) (*Graph, BuildStats, error) {
	var stats BuildStats
	scale := opts.Resolution
	if scale == [3]int64{} {
		scale = [3]int64{1, 1, 1}
	}
	if scale[0] <= 0 || scale[1] <= 0 || scale[2] <= 0 {
		return nil, stats, emerrors.New(emerrors.ErrCodeInvalidInput, "resolution %v must be positive on every axis", scale)
	}

	b := NewBuilder(nil, opts.DType)
	for _, s := range skels {
		if len(s.Edges) == 0 {
			stats.Skipped = append(stats.Skipped, s.ID)
			continue
		}
		offset := len(b.columns[AttrSkeletonID])
		for _, v := range s.Vertices {
			if _, err := b.AddNode(map[string]int64{
				AttrSkeletonID: s.ID,
				AttrZ:          v[0] * scale[0],
				AttrY:          v[1] * scale[1],
				AttrX:          v[2] * scale[2],
			}); err != nil {
				return nil, stats, err
			}
		}
		for _, e := range s.Edges {
			if e[0] < 0 || e[1] < 0 || e[0] >= len(s.Vertices) || e[1] >= len(s.Vertices) {
				return nil, stats, emerrors.New(emerrors.ErrCodeOutOfRange,
					"skeleton %d: edge (%d, %d) with %d vertices", s.ID, e[0], e[1], len(s.Vertices))
			}
			length := distance(s.Vertices[e[0]], s.Vertices[e[1]], scale)
			b.AddEdgeWithLength(offset+e[0], offset+e[1], length)
		}
		stats.Skeletons++
	}

	g, err := b.Build()
	if err != nil {
		return nil, stats, err
	}
	if err := g.NodeTable().SetResolution(scale); err != nil {
		return nil, stats, err
	}
	stats.Nodes = g.NodeCount()
	stats.Edges = g.EdgeCount()
	return g, stats, nil
}

func distance(a, b [3]int64, scale [3]int64) float64 {
	var sum float64
	for i := range 3 {
		d := float64((a[i] - b[i]) * scale[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
