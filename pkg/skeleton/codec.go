package skeleton

import (
	"fmt"
	"io"
	"slices"

	"github.com/matzehuels/emerl/internal/binio"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

const (
	nodeMagic    = "ERLN"
	edgeMagic    = "ERLE"
	codecVersion = 1
)

// Save writes the node table to nodes and the edge table to edges.
func (g *Graph) Save(nodes, edges io.Writer) error {
	if err := WriteNodeTable(nodes, g.nodes); err != nil {
		return fmt.Errorf("save nodes: %w", err)
	}
	if err := WriteEdgeTable(edges, g.edges); err != nil {
		return fmt.Errorf("save edges: %w", err)
	}
	return nil
}

// Load reads a graph previously written by [Graph.Save].
func Load(nodes, edges io.Reader) (*Graph, error) {
	nt, err := ReadNodeTable(nodes)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	et, err := ReadEdgeTable(edges)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	return New(nt, et)
}

// WriteNodeTable encodes t. Values are stored at the table's dtype width.
func WriteNodeTable(w io.Writer, t *NodeTable) error {
	bw, err := binio.NewWriter(w, nodeMagic, codecVersion)
	if err != nil {
		return err
	}
	bw.Uint8(uint8(t.dtype))
	for _, r := range t.Resolution() {
		bw.Uint64(uint64(r))
	}
	bw.Uint16(uint16(len(t.attrs)))
	for _, a := range t.attrs {
		bw.String(a)
	}
	bw.Uint64(uint64(t.rows))
	for _, v := range t.data {
		switch t.dtype.Width() {
		case 1:
			bw.Uint8(uint8(v))
		case 2:
			bw.Uint16(uint16(v))
		case 4:
			bw.Uint32(uint32(v))
		default:
			bw.Uint64(uint64(v))
		}
	}
	return bw.Close()
}

// ReadNodeTable decodes a table written by [WriteNodeTable].
func ReadNodeTable(r io.Reader) (*NodeTable, error) {
	br, _, err := binio.NewReader(r, nodeMagic)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	dtype := DType(br.Uint8())
	if br.Err() == nil && !dtype.Valid() {
		br.Fail(emerrors.New(emerrors.ErrCodeCorrupt, "unknown dtype %d", dtype))
	}
	var res [3]int64
	for i := range res {
		res[i] = int64(br.Uint64())
		if br.Err() == nil && res[i] <= 0 {
			br.Fail(emerrors.New(emerrors.ErrCodeCorrupt, "resolution axis %d is %d", i, res[i]))
		}
	}
	attrs := make([]string, br.Uint16())
	for i := range attrs {
		attrs[i] = br.String()
	}
	// Column lookup binary-searches the attribute names.
	if br.Err() == nil && (!slices.IsSorted(attrs) || len(slices.Compact(slices.Clone(attrs))) != len(attrs)) {
		br.Fail(emerrors.New(emerrors.ErrCodeCorrupt, "node attributes %v are not sorted and unique", attrs))
	}
	rows := br.Count()
	if br.Err() == nil && len(attrs) > 0 && rows > binio.MaxElements/len(attrs) {
		br.Fail(emerrors.New(emerrors.ErrCodeCorrupt, "%d rows of %d attributes exceeds %d values", rows, len(attrs), binio.MaxElements))
	}
	if err := br.Err(); err != nil {
		return nil, err
	}

	// Values are decoded straight into the table; they were validated
	// against the dtype when the table was first built.
	data := make([]int64, rows*len(attrs))
	for i := range data {
		switch dtype {
		case Uint8:
			data[i] = int64(br.Uint8())
		case Uint16:
			data[i] = int64(br.Uint16())
		case Uint32:
			data[i] = int64(br.Uint32())
		case Int32:
			data[i] = int64(int32(br.Uint32()))
		default:
			data[i] = int64(br.Uint64())
		}
	}
	if err := br.Err(); err != nil {
		return nil, err
	}
	t := &NodeTable{attrs: attrs, dtype: dtype, rows: rows, data: data}
	if err := t.SetResolution(res); err != nil {
		return nil, emerrors.Wrap(emerrors.ErrCodeCorrupt, err, "decode node table")
	}
	return t, nil
}

// WriteEdgeTable encodes t in insertion order.
func WriteEdgeTable(w io.Writer, t *EdgeTable) error {
	bw, err := binio.NewWriter(w, edgeMagic, codecVersion)
	if err != nil {
		return err
	}
	bw.Uint64(uint64(t.nodes))
	bw.Uint64(uint64(len(t.edges)))
	for i, e := range t.edges {
		bw.Uint64(uint64(e.U))
		bw.Uint64(uint64(e.V))
		bw.Float64(t.lengths[i])
	}
	return bw.Close()
}

// ReadEdgeTable decodes a table written by [WriteEdgeTable].
func ReadEdgeTable(r io.Reader) (*EdgeTable, error) {
	br, _, err := binio.NewReader(r, edgeMagic)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	nodes := br.Count()
	count := br.Count()
	if err := br.Err(); err != nil {
		return nil, err
	}
	t := NewEdgeTable(nodes)
	for range count {
		u, v, l := int(br.Uint64()), int(br.Uint64()), br.Float64()
		if err := br.Err(); err != nil {
			return nil, err
		}
		if err := t.Add(u, v, l); err != nil {
			return nil, emerrors.Wrap(emerrors.ErrCodeCorrupt, err, "decode edge table")
		}
	}
	return t, nil
}
