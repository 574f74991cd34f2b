// Package lut builds node-to-segment lookup tables.
//
// A lookup maps every graph node, by its row index, to the segment ID found
// at the node's voxel coordinate. Three construction paths produce the same
// result:
//
//   - [Build] indexes an in-memory volume directly.
//   - [BuildChunked] streams z-slabs in increasing z order so only one slab
//     is resident at a time. It is strictly sequential.
//   - [BuildTiles] and [CombineTiles] partition the volume into a 3D tile
//     grid. Tiles are independent and idempotent, so they can run in
//     parallel or on separate machines; the combine step is a single
//     reduction that refuses to run while any tile output is missing.
//
// Any path can also gather the mask support: the set of segment IDs found
// under a mask region, with per-segment voxel counts.
package lut

import (
	"cmp"
	"context"
	"io"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/observability"
	"github.com/matzehuels/emerl/pkg/volume"
)

// IDType is the declared width of lookup values.
type IDType uint8

const (
	ID8 IDType = iota + 1
	ID16
	ID32
	ID64
)

// DefaultIDType matches the usual uint32 segmentation exports.
const DefaultIDType = ID32

// Max returns the largest representable segment ID.
func (t IDType) Max() uint64 {
	switch t {
	case ID8:
		return math.MaxUint8
	case ID16:
		return math.MaxUint16
	case ID32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

// String returns the numpy-style name.
func (t IDType) String() string {
	switch t {
	case ID8:
		return "uint8"
	case ID16:
		return "uint16"
	case ID32:
		return "uint32"
	case ID64:
		return "uint64"
	}
	return "invalid"
}

// ParseIDType parses "uint8", "uint16", "uint32" or "uint64". The empty
// string selects [DefaultIDType].
func ParseIDType(s string) (IDType, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultIDType, nil
	case "uint8":
		return ID8, nil
	case "uint16":
		return ID16, nil
	case "uint32":
		return ID32, nil
	case "uint64":
		return ID64, nil
	}
	return 0, emerrors.New(emerrors.ErrCodeInvalidInput, "unknown id dtype %q", s)
}

// MaskSupport counts mask voxels per segment ID. Segment 0 is never
// recorded.
type MaskSupport map[uint64]int

// IDs returns the segment IDs in ascending order.
func (m MaskSupport) IDs() []uint64 {
	return slices.Sorted(maps.Keys(m))
}

// Merge adds the counts of other into m.
func (m MaskSupport) Merge(other MaskSupport) {
	for id, n := range other {
		m[id] += n
	}
}

// Filter drops every ID not present in keep.
func (m MaskSupport) Filter(keep map[uint64]struct{}) {
	for id := range m {
		if _, ok := keep[id]; !ok {
			delete(m, id)
		}
	}
}

// collectMask counts seg IDs at voxels where mask is nonzero. The two
// volumes must have the same shape.
func collectMask(seg, mask volume.Volume, into MaskSupport) error {
	s := seg.Shape()
	if mask.Shape() != s {
		return emerrors.New(emerrors.ErrCodeInvalidInput,
			"mask shape %v does not match segmentation %v", mask.Shape(), s)
	}
	for z := range s[0] {
		for y := range s[1] {
			for x := range s[2] {
				if mask.At(z, y, x) == 0 {
					continue
				}
				if id := seg.At(z, y, x); id != 0 {
					into[id]++
				}
			}
		}
	}
	return nil
}

func checkID(id uint64, t IDType, node int) error {
	if id > t.Max() {
		return emerrors.New(emerrors.ErrCodeOutOfRange,
			"segment %d at node %d exceeds %s", id, node, t)
	}
	return nil
}

// Options configures a lookup build.
type Options struct {
	// IDType bounds the stored segment IDs. Zero means DefaultIDType.
	IDType IDType

	// Logger receives progress messages. Nil discards them.
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.IDType == 0 {
		o.IDType = DefaultIDType
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Build indexes seg at every position. When mask is non-nil the mask
// support is collected over the whole volume.
func Build(seg volume.Volume, positions [][3]int64, mask volume.Volume, opts Options) ([]uint64, MaskSupport, error) {
	opts = opts.withDefaults()
	s := seg.Shape()
	out := make([]uint64, len(positions))
	for i, p := range positions {
		if !s.Contains(p[0], p[1], p[2]) {
			return nil, nil, emerrors.New(emerrors.ErrCodeOutOfRange,
				"node %d at %v lies outside volume %v", i, p, s)
		}
		id := seg.At(int(p[0]), int(p[1]), int(p[2]))
		if err := checkID(id, opts.IDType, i); err != nil {
			return nil, nil, err
		}
		out[i] = id
	}

	var support MaskSupport
	if mask != nil {
		support = make(MaskSupport)
		if err := collectMask(seg, mask, support); err != nil {
			return nil, nil, err
		}
	}
	return out, support, nil
}

// BuildChunked streams seg slab by slab. mask, when non-nil, must yield
// slabs matching seg slab for slab. After the last slab the mask support
// is restricted to segment IDs that appear in the lookup.
func BuildChunked(ctx context.Context, seg volume.SlabSource, positions [][3]int64, mask volume.SlabSource, opts Options) ([]uint64, MaskSupport, error) {
	opts = opts.withDefaults()
	n := seg.NumChunks()
	if err := emerrors.ValidatePositive("chunk count", n); err != nil {
		return nil, nil, err
	}
	if mask != nil && mask.NumChunks() != n {
		return nil, nil, emerrors.New(emerrors.ErrCodeInvalidInput,
			"mask has %d chunks, segmentation has %d", mask.NumChunks(), n)
	}

	// Visit nodes in z order so each slab touches a contiguous run.
	order := make([]int, len(positions))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(positions[a][0], positions[b][0])
	})

	out := make([]uint64, len(positions))
	var support MaskSupport
	if mask != nil {
		support = make(MaskSupport)
	}

	next := 0
	var startZ int64
	var plane volume.Shape
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		observability.Lookup().OnChunkStart(ctx, i, n)
		start := time.Now()

		slab, err := seg.ReadChunk(ctx, i)
		if err != nil {
			return nil, nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "read segmentation chunk %d", i)
		}
		s := slab.Shape()
		if i > 0 && (s[1] != plane[1] || s[2] != plane[2]) {
			return nil, nil, emerrors.New(emerrors.ErrCodeInvalidInput,
				"chunk %d has plane %dx%d, expected %dx%d", i, s[1], s[2], plane[1], plane[2])
		}
		plane = s
		lastZ := startZ + int64(s[0])

		resolved := 0
		for ; next < len(order); next++ {
			node := order[next]
			p := positions[node]
			if p[0] < startZ {
				return nil, nil, emerrors.New(emerrors.ErrCodeOutOfRange,
					"node %d at %v lies outside the volume", node, p)
			}
			if p[0] >= lastZ {
				break
			}
			if !s.Contains(p[0]-startZ, p[1], p[2]) {
				return nil, nil, emerrors.New(emerrors.ErrCodeOutOfRange,
					"node %d at %v lies outside chunk %d", node, p, i)
			}
			id := slab.At(int(p[0]-startZ), int(p[1]), int(p[2]))
			if err := checkID(id, opts.IDType, node); err != nil {
				return nil, nil, err
			}
			out[node] = id
			resolved++
		}

		if mask != nil {
			mslab, err := mask.ReadChunk(ctx, i)
			if err != nil {
				return nil, nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "read mask chunk %d", i)
			}
			chunk := make(MaskSupport)
			if err := collectMask(slab, mslab, chunk); err != nil {
				return nil, nil, err
			}
			support.Merge(chunk)
		}

		d := time.Since(start)
		opts.Logger.Debug("chunk indexed", "chunk", i, "z", startZ, "depth", s[0], "nodes", resolved, "elapsed", d)
		observability.Lookup().OnChunkComplete(ctx, i, resolved, d)
		startZ = lastZ
	}
	if next < len(order) {
		node := order[next]
		return nil, nil, emerrors.New(emerrors.ErrCodeOutOfRange,
			"node %d at %v lies below the last chunk (depth %d)", node, positions[node], startZ)
	}

	if support != nil {
		used := make(map[uint64]struct{}, len(out))
		for _, id := range out {
			used[id] = struct{}{}
		}
		before := len(support)
		support.Filter(used)
		opts.Logger.Debug("mask support filtered", "candidates", before, "kept", len(support))
	}
	return out, support, nil
}
