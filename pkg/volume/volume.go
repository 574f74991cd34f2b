// Package volume provides segment-ID volumes and z-slab streaming.
//
// A [Volume] is any 3D array of segment IDs addressed as (z, y, x). [Dense]
// is the in-memory implementation. Volumes too large for memory are read
// through a [SlabSource], which yields consecutive z-slabs in increasing z
// order; [Split] adapts an in-memory volume and [StoreSlabs] reads slabs
// persisted as separate artifacts.
package volume

import (
	"context"
	"fmt"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// Shape is a (z, y, x) extent.
type Shape [3]int

// Len returns the number of voxels.
func (s Shape) Len() int { return s[0] * s[1] * s[2] }

// Contains reports whether (z, y, x) lies inside the shape.
func (s Shape) Contains(z, y, x int64) bool {
	return z >= 0 && y >= 0 && x >= 0 &&
		z < int64(s[0]) && y < int64(s[1]) && x < int64(s[2])
}

// String formats the shape as "ZxYxX".
func (s Shape) String() string { return fmt.Sprintf("%dx%dx%d", s[0], s[1], s[2]) }

// Volume is a read-only 3D array of segment IDs.
type Volume interface {
	Shape() Shape
	At(z, y, x int) uint64
}

// Dense is an in-memory volume stored in C order (x fastest).
type Dense struct {
	shape Shape
	data  []uint64
}

// NewDense wraps data as a volume of the given shape. A nil data slice
// allocates a zero-filled volume.
func NewDense(shape Shape, data []uint64) (*Dense, error) {
	if shape[0] < 0 || shape[1] < 0 || shape[2] < 0 {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput, "negative shape %v", shape)
	}
	if data == nil {
		data = make([]uint64, shape.Len())
	}
	if len(data) != shape.Len() {
		return nil, emerrors.New(emerrors.ErrCodeInvalidInput,
			"volume %v needs %d voxels, got %d", shape, shape.Len(), len(data))
	}
	return &Dense{shape: shape, data: data}, nil
}

// Shape returns the volume extent.
func (d *Dense) Shape() Shape { return d.shape }

func (d *Dense) offset(z, y, x int) int {
	return (z*d.shape[1]+y)*d.shape[2] + x
}

// At returns the segment ID at (z, y, x).
func (d *Dense) At(z, y, x int) uint64 { return d.data[d.offset(z, y, x)] }

// Set stores id at (z, y, x).
func (d *Dense) Set(z, y, x int, id uint64) { d.data[d.offset(z, y, x)] = id }

// Data returns the backing slice.
func (d *Dense) Data() []uint64 { return d.data }

// SlabSource yields a volume as consecutive z-slabs. Slab i covers the z
// range immediately after slab i-1; all slabs share the same y and x
// extent.
type SlabSource interface {
	NumChunks() int
	ReadChunk(ctx context.Context, i int) (Volume, error)
}

// Crop returns the sub-volume covering z in [z0, z1) with full y and x
// extent. The result shares no memory with v.
func Crop(v Volume, z0, z1 int) *Dense {
	s := v.Shape()
	out, _ := NewDense(Shape{z1 - z0, s[1], s[2]}, nil)
	for z := z0; z < z1; z++ {
		for y := range s[1] {
			for x := range s[2] {
				out.Set(z-z0, y, x, v.At(z, y, x))
			}
		}
	}
	return out
}

// ChunkBounds returns the z range of chunk i when depth slices are split
// into n nearly equal chunks.
func ChunkBounds(depth, n, i int) (z0, z1 int) {
	return i * depth / n, (i + 1) * depth / n
}

type splitSource struct {
	v Volume
	n int
}

// Split presents an in-memory volume as n z-slabs.
func Split(v Volume, n int) (SlabSource, error) {
	if err := emerrors.ValidatePositive("chunk count", n); err != nil {
		return nil, err
	}
	return &splitSource{v: v, n: n}, nil
}

func (s *splitSource) NumChunks() int { return s.n }

func (s *splitSource) ReadChunk(_ context.Context, i int) (Volume, error) {
	if i < 0 || i >= s.n {
		return nil, emerrors.New(emerrors.ErrCodeOutOfRange, "chunk %d of %d", i, s.n)
	}
	z0, z1 := ChunkBounds(s.v.Shape()[0], s.n, i)
	return Crop(s.v, z0, z1), nil
}
