package skeleton

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/emerl/internal/binio"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// line builds one skeleton A-B-C along x with unit spacing.
func line(id int64) Skeleton {
	return Skeleton{
		ID:       id,
		Vertices: [][3]int64{{0, 0, 0}, {0, 0, 1}, {0, 0, 2}},
		Edges:    [][2]int{{0, 1}, {1, 2}},
	}
}

func TestFromSkeletons(t *testing.T) {
	isolated := Skeleton{ID: 5, Vertices: [][3]int64{{3, 3, 3}}}
	g, stats, err := FromSkeletons([]Skeleton{line(1), isolated, line(2)}, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, 6, g.NodeCount())
	assert.Equal(t, 4, g.EdgeCount())
	assert.Equal(t, 2, stats.Skeletons)
	assert.Equal(t, []int64{5}, stats.Skipped)
	assert.Equal(t, []int64{1, 2}, g.SkeletonIDs())

	// Second skeleton is offset by the first one's nodes.
	assert.Equal(t, int64(2), g.SkeletonID(3))
	assert.True(t, g.HasEdge(4, 3))
	l, ok := g.EdgeLength(5, 4)
	require.True(t, ok)
	assert.Equal(t, 1.0, l)
}

func TestFromSkeletonsResolution(t *testing.T) {
	s := Skeleton{ID: 0, Vertices: [][3]int64{{1, 0, 0}, {1, 1, 1}}, Edges: [][2]int{{0, 1}}}
	g, _, err := FromSkeletons([]Skeleton{s}, BuildOptions{Resolution: [3]int64{40, 4, 4}})
	require.NoError(t, err)

	assert.Equal(t, [3]int64{40, 4, 4}, g.Voxel(1))
	assert.Equal(t, [3]int64{40, 4, 4}, g.Resolution())
	l, _ := g.EdgeLength(0, 1)
	assert.InDelta(t, math.Sqrt(32), l, 1e-12)

	var nodes, edges bytes.Buffer
	require.NoError(t, g.Save(&nodes, &edges))
	got, err := Load(&nodes, &edges)
	require.NoError(t, err)
	assert.Equal(t, [3]int64{40, 4, 4}, got.Resolution())

	_, _, err = FromSkeletons([]Skeleton{s}, BuildOptions{Resolution: [3]int64{1, 0, 1}})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput))
}

func TestUnscaledResolution(t *testing.T) {
	g, _, err := FromSkeletons([]Skeleton{line(1)}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, [3]int64{1, 1, 1}, g.Resolution())
}

func TestFromSkeletonsBadEdge(t *testing.T) {
	s := Skeleton{ID: 0, Vertices: [][3]int64{{0, 0, 0}}, Edges: [][2]int{{0, 3}}}
	_, _, err := FromSkeletons([]Skeleton{s}, BuildOptions{})
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeOutOfRange))
}

func TestNodeTableRangeCheck(t *testing.T) {
	b := NewBuilder(nil, Uint8)
	_, err := b.AddNode(map[string]int64{AttrSkeletonID: 1, AttrZ: 0, AttrY: 0, AttrX: 256})
	require.NoError(t, err)

	_, err = b.Build()
	require.Error(t, err)
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeOutOfRange))

	b = NewBuilder(nil, Uint16)
	_, err = b.AddNode(map[string]int64{AttrSkeletonID: -1, AttrZ: 0, AttrY: 0, AttrX: 0})
	require.NoError(t, err)
	_, err = b.Build()
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeOutOfRange))
}

func TestBuilderMissingAttribute(t *testing.T) {
	b := NewBuilder([]string{"radius"}, 0)
	_, err := b.AddNode(map[string]int64{AttrSkeletonID: 1, AttrZ: 0, AttrY: 0, AttrX: 0})
	assert.True(t, errors.Is(err, ErrMissingAttribute))
}

func TestAttributesSorted(t *testing.T) {
	b := NewBuilder([]string{"radius"}, 0)
	_, err := b.AddNode(map[string]int64{AttrSkeletonID: 9, AttrZ: 1, AttrY: 2, AttrX: 3, "radius": 4})
	require.NoError(t, err)
	g, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"radius", "skeleton_id", "x", "y", "z"}, g.NodeTable().Attributes())
	assert.Equal(t, map[string]int64{"radius": 4, "skeleton_id": 9, "x": 3, "y": 2, "z": 1}, g.NodeAttrs(0))
	assert.Equal(t, [3]float64{1, 2, 3}, g.Position(0))
	r, ok := g.Attr(0, "radius")
	assert.True(t, ok)
	assert.Equal(t, int64(4), r)
}

func TestEdgeCanonicalization(t *testing.T) {
	b := NewBuilder(nil, 0)
	for i := range 3 {
		_, err := b.AddNode(map[string]int64{AttrSkeletonID: 0, AttrZ: 0, AttrY: 0, AttrX: int64(i)})
		require.NoError(t, err)
	}
	b.AddEdge(2, 1)
	b.AddEdgeWithLength(0, 1, 1.0)
	g, err := b.Build()
	require.NoError(t, err)

	edges := slices.Collect(g.Edges())
	assert.Equal(t, []Edge{{U: 1, V: 2}, {U: 0, V: 1}}, edges)

	l, ok := g.EdgeLength(1, 2)
	require.True(t, ok)
	assert.True(t, IsUnset(l))

	require.NoError(t, g.SetEdgeLength(2, 1, 1.5))
	l, _ = g.EdgeLength(1, 2)
	assert.Equal(t, 1.5, l)

	err = g.SetEdgeLength(0, 2, 3)
	assert.True(t, errors.Is(err, ErrEdgeNotFound))
	assert.Equal(t, 2, g.EdgeCount())
}

func TestEdgeOutOfRange(t *testing.T) {
	b := NewBuilder(nil, 0)
	_, _ = b.AddNode(map[string]int64{AttrSkeletonID: 0, AttrZ: 0, AttrY: 0, AttrX: 0})
	b.AddEdge(0, 1)
	_, err := b.Build()
	assert.True(t, errors.Is(err, ErrNodeOutOfRange))
}

func TestIterationStops(t *testing.T) {
	g, _, err := FromSkeletons([]Skeleton{line(1)}, BuildOptions{})
	require.NoError(t, err)

	count := 0
	for range g.Nodes() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)

	for n, attrs := range g.NodesWithAttrs() {
		assert.Equal(t, g.SkeletonID(n), attrs[AttrSkeletonID])
	}
	for e, l := range g.EdgesWithLength() {
		want, _ := g.EdgeLength(e.U, e.V)
		assert.Equal(t, want, l)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, dtype := range []DType{Uint8, Uint16, Uint32, Int32, Int64} {
		t.Run(dtype.String(), func(t *testing.T) {
			skels := []Skeleton{line(1), line(7)}
			skels[1].Vertices[2] = [3]int64{3, 1, 2}
			g, _, err := FromSkeletons(skels, BuildOptions{DType: dtype})
			require.NoError(t, err)
			require.NoError(t, g.SetEdgeLength(0, 1, UnsetLength))

			var nodes, edges bytes.Buffer
			require.NoError(t, g.Save(&nodes, &edges))

			got, err := Load(&nodes, &edges)
			require.NoError(t, err)
			assert.Equal(t, g.NodeTable(), got.NodeTable())
			assert.Equal(t, g.NodeCount(), got.NodeCount())
			for e, l := range g.EdgesWithLength() {
				gl, ok := got.EdgeLength(e.U, e.V)
				require.True(t, ok, "edge %v missing after reload", e)
				assert.Equal(t, math.Float64bits(l), math.Float64bits(gl))
			}
			assert.Equal(t, slices.Collect(g.Edges()), slices.Collect(got.Edges()))
		})
	}
}

func TestLoadCorrupt(t *testing.T) {
	g, _, err := FromSkeletons([]Skeleton{line(1)}, BuildOptions{})
	require.NoError(t, err)
	var nodes, edges bytes.Buffer
	require.NoError(t, g.Save(&nodes, &edges))

	// Swapped artifacts must be rejected by magic.
	_, err = Load(&edges, &nodes)
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeCorrupt))
}

// nodeHeader encodes a node table header with no values.
func nodeHeader(t *testing.T, res [3]uint64, attrs []string, rows uint64) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w, err := binio.NewWriter(&buf, nodeMagic, codecVersion)
	require.NoError(t, err)
	w.Uint8(uint8(Int64))
	for _, r := range res {
		w.Uint64(r)
	}
	w.Uint16(uint16(len(attrs)))
	for _, a := range attrs {
		w.String(a)
	}
	w.Uint64(rows)
	require.NoError(t, w.Close())
	return &buf
}

func TestReadNodeTableCorruptHeader(t *testing.T) {
	attrs := []string{AttrSkeletonID, AttrX, AttrY, AttrZ}
	tests := []struct {
		name  string
		res   [3]uint64
		attrs []string
		rows  uint64
	}{
		{"zero resolution", [3]uint64{1, 0, 1}, attrs, 1},
		{"unsorted attributes", [3]uint64{1, 1, 1}, []string{AttrZ, AttrSkeletonID, AttrX, AttrY}, 1},
		{"duplicate attributes", [3]uint64{1, 1, 1}, []string{AttrSkeletonID, AttrX, AttrX, AttrY, AttrZ}, 1},
		{"too many values", [3]uint64{1, 1, 1}, attrs, binio.MaxElements/2 + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadNodeTable(nodeHeader(t, tt.res, tt.attrs, tt.rows))
			require.Error(t, err)
			assert.True(t, emerrors.Is(err, emerrors.ErrCodeCorrupt), "got %v", err)
		})
	}
}

func TestParseDType(t *testing.T) {
	d, err := ParseDType("UINT16")
	require.NoError(t, err)
	assert.Equal(t, Uint16, d)

	_, err = ParseDType("float32")
	assert.Error(t, err)
}
