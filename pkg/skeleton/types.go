package skeleton

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

var (
	// ErrEdgeNotFound is returned by [Graph.SetEdgeLength] when the pair is
	// not an edge of the graph. The edge set is fixed after construction.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrNodeOutOfRange is returned when a node index falls outside 0..N-1.
	ErrNodeOutOfRange = errors.New("node index out of range")

	// ErrMissingAttribute is returned when a required node attribute is
	// not declared or not supplied.
	ErrMissingAttribute = errors.New("missing node attribute")
)

// Required node attribute names.
const (
	AttrSkeletonID = "skeleton_id"
	AttrZ          = "z"
	AttrY          = "y"
	AttrX          = "x"
)

// DefaultAttributes are the node attributes every graph carries.
var DefaultAttributes = []string{AttrSkeletonID, AttrZ, AttrY, AttrX}

// UnsetLength marks an edge whose length has not been computed yet.
// Any negative length is treated as unset.
const UnsetLength = -1.0

// IsUnset reports whether l is the unset sentinel.
func IsUnset(l float64) bool { return l < 0 }

// DType is the declared integer width of a node table. It bounds the values
// accepted at construction and the on-disk width of each value.
type DType uint8

// Supported node table dtypes.
const (
	Uint8 DType = iota + 1
	Uint16
	Uint32
	Int32
	Int64
)

var dtypeNames = map[DType]string{
	Uint8:  "uint8",
	Uint16: "uint16",
	Uint32: "uint32",
	Int32:  "int32",
	Int64:  "int64",
}

// String returns the numpy-style dtype name.
func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Valid reports whether d is a supported dtype.
func (d DType) Valid() bool {
	_, ok := dtypeNames[d]
	return ok
}

// Bounds returns the smallest and largest representable values.
func (d DType) Bounds() (lo, hi int64) {
	switch d {
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

// Width returns the encoded size of one value in bytes.
func (d DType) Width() int {
	switch d {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Uint32, Int32:
		return 4
	default:
		return 8
	}
}

// ParseDType parses a dtype name such as "uint32".
func ParseDType(s string) (DType, error) {
	for d, name := range dtypeNames {
		if strings.EqualFold(name, s) {
			return d, nil
		}
	}
	return 0, emerrors.New(emerrors.ErrCodeInvalidInput, "unknown dtype %q", s)
}

// NodeTable is a dense row-major table of integer node attributes.
// Columns are sorted by attribute name.
type NodeTable struct {
	attrs []string
	dtype DType
	rows  int
	data  []int64

	// resolution is the per-axis scale the z, y and x columns were
	// multiplied by. The zero value means unscaled.
	resolution [3]int64
}

// NewNodeTable builds a table from per-attribute columns. Every declared
// attribute must be supplied, all columns must have the same length, and
// every value must fit dtype; violations are reported before any table is
// returned.
func NewNodeTable(attrs []string, dtype DType, columns map[string][]int64) (*NodeTable, error) {
	if !dtype.Valid() {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "unsupported dtype %v", dtype)
	}
	sorted := slices.Sorted(slices.Values(attrs))
	if len(slices.Compact(slices.Clone(sorted))) != len(sorted) {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "duplicate node attribute in %v", attrs)
	}

	rows := -1
	for _, a := range sorted {
		col, ok := columns[a]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, a)
		}
		if rows >= 0 && len(col) != rows {
			return nil, emerrors.New(emerrors.ErrCodeInvalidInput,
				"attribute %s has %d values, want %d", a, len(col), rows)
		}
		rows = len(col)
	}
	if rows <= 0 {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "node table must have at least one node")
	}

	lo, hi := dtype.Bounds()
	data := make([]int64, rows*len(sorted))
	for c, a := range sorted {
		for r, v := range columns[a] {
			if v < lo || v > hi {
				return nil, emerrors.New(emerrors.ErrCodeOutOfRange,
					"node %d attribute %s = %d does not fit %v [%d, %d]", r, a, v, dtype, lo, hi)
			}
			data[r*len(sorted)+c] = v
		}
	}
	return &NodeTable{attrs: sorted, dtype: dtype, rows: rows, data: data}, nil
}

// Len returns the number of nodes (rows).
func (t *NodeTable) Len() int { return t.rows }

// Attributes returns the column names in storage order.
func (t *NodeTable) Attributes() []string { return slices.Clone(t.attrs) }

// DType returns the declared value width.
func (t *NodeTable) DType() DType { return t.dtype }

// Resolution returns the (z, y, x) scale of the coordinate columns.
// Unscaled tables report (1, 1, 1).
func (t *NodeTable) Resolution() [3]int64 {
	if t.resolution == ([3]int64{}) {
		return [3]int64{1, 1, 1}
	}
	return t.resolution
}

// SetResolution records the scale applied to the coordinate columns.
// Every axis must be positive.
func (t *NodeTable) SetResolution(r [3]int64) error {
	if r[0] <= 0 || r[1] <= 0 || r[2] <= 0 {
		return emerrors.New(emerrors.ErrCodeInvalidInput, "resolution %v must be positive on every axis", r)
	}
	if r == ([3]int64{1, 1, 1}) {
		r = [3]int64{}
	}
	t.resolution = r
	return nil
}

// Column returns the index of the named attribute column.
func (t *NodeTable) Column(name string) (int, bool) {
	i, ok := slices.BinarySearch(t.attrs, name)
	return i, ok
}

// Value returns the value at the given row and column.
func (t *NodeTable) Value(row, col int) int64 { return t.data[row*len(t.attrs)+col] }

// Row returns a copy of one row in column order.
func (t *NodeTable) Row(row int) []int64 {
	w := len(t.attrs)
	return slices.Clone(t.data[row*w : (row+1)*w])
}

// Edge is an unordered node pair in canonical form (U <= V).
type Edge struct {
	U, V int
}

// NewEdge returns the canonical edge for the pair (u, v).
func NewEdge(u, v int) Edge {
	if u > v {
		u, v = v, u
	}
	return Edge{U: u, V: v}
}

// String formats the edge as "(u, v)".
func (e Edge) String() string { return fmt.Sprintf("(%d, %d)", e.U, e.V) }

// EdgeTable is a sparse symmetric map from canonical node pairs to a
// length. Iteration follows insertion order.
type EdgeTable struct {
	nodes   int
	index   map[Edge]int
	edges   []Edge
	lengths []float64
}

// NewEdgeTable creates an empty edge table over nodes nodes.
func NewEdgeTable(nodes int) *EdgeTable {
	return &EdgeTable{nodes: nodes, index: make(map[Edge]int)}
}

// Add inserts the edge (u, v) with the given length. Adding an existing
// pair again overwrites its length and keeps its original position.
func (t *EdgeTable) Add(u, v int, length float64) error {
	if u < 0 || v < 0 || u >= t.nodes || v >= t.nodes {
		return fmt.Errorf("%w: edge (%d, %d) with %d nodes", ErrNodeOutOfRange, u, v, t.nodes)
	}
	e := NewEdge(u, v)
	if i, ok := t.index[e]; ok {
		t.lengths[i] = length
		return nil
	}
	t.index[e] = len(t.edges)
	t.edges = append(t.edges, e)
	t.lengths = append(t.lengths, length)
	return nil
}

// Len returns the number of stored edges.
func (t *EdgeTable) Len() int { return len(t.edges) }

// Nodes returns the node count the table was created for.
func (t *EdgeTable) Nodes() int { return t.nodes }

// Lookup returns the length of the edge (u, v) and whether it exists.
func (t *EdgeTable) Lookup(u, v int) (float64, bool) {
	i, ok := t.index[NewEdge(u, v)]
	if !ok {
		return 0, false
	}
	return t.lengths[i], true
}

// At returns the i-th edge in insertion order and its length.
func (t *EdgeTable) At(i int) (Edge, float64) { return t.edges[i], t.lengths[i] }
