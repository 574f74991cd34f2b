package volume

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/emerl/pkg/artifact"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// ramp returns a volume whose voxel value encodes its coordinate.
func ramp(t *testing.T, s Shape) *Dense {
	t.Helper()
	v, err := NewDense(s, nil)
	require.NoError(t, err)
	for z := range s[0] {
		for y := range s[1] {
			for x := range s[2] {
				v.Set(z, y, x, uint64(100*z+10*y+x))
			}
		}
	}
	return v
}

func TestNewDense(t *testing.T) {
	_, err := NewDense(Shape{2, 2, 2}, make([]uint64, 7))
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput))

	_, err = NewDense(Shape{-1, 2, 2}, nil)
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeInvalidInput))

	v, err := NewDense(Shape{2, 3, 4}, nil)
	require.NoError(t, err)
	assert.Len(t, v.Data(), 24)
	v.Set(1, 2, 3, 9)
	assert.Equal(t, uint64(9), v.At(1, 2, 3))
	assert.Equal(t, uint64(9), v.Data()[23])
}

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.Len())
	assert.Equal(t, "2x3x4", s.String())
	assert.True(t, s.Contains(1, 2, 3))
	assert.False(t, s.Contains(2, 0, 0))
	assert.False(t, s.Contains(0, -1, 0))
}

func TestSplit(t *testing.T) {
	v := ramp(t, Shape{5, 2, 2})
	src, err := Split(v, 3)
	require.NoError(t, err)
	require.Equal(t, 3, src.NumChunks())

	// Slabs cover [0,1), [1,3), [3,5)
	wantDepth := []int{1, 2, 2}
	z := 0
	for i := range 3 {
		slab, err := src.ReadChunk(context.Background(), i)
		require.NoError(t, err)
		require.Equal(t, wantDepth[i], slab.Shape()[0])
		for dz := range slab.Shape()[0] {
			assert.Equal(t, v.At(z, 1, 1), slab.At(dz, 1, 1))
			z++
		}
	}
	assert.Equal(t, 5, z)

	_, err = src.ReadChunk(context.Background(), 3)
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeOutOfRange))

	_, err = Split(v, 0)
	assert.Error(t, err)
}

func TestCodecRoundTrip(t *testing.T) {
	v := ramp(t, Shape{3, 2, 4})
	v.Set(0, 0, 0, 1<<63)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, v))
	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, v.Shape(), got.Shape())
	assert.Equal(t, v.Data(), got.Data())
}

func TestReadCorrupt(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not a volume")))
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeCorrupt))
}

func TestStoreSlabs(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemoryStore()
	v := ramp(t, Shape{4, 3, 3})

	src, err := PutSlabs(ctx, store, "seg/chunk/%04d", v, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"seg/chunk/0000", "seg/chunk/0001"}, store.Keys())

	slab, err := src.ReadChunk(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3, 3}, slab.Shape())
	assert.Equal(t, v.At(3, 2, 1), slab.At(1, 2, 1))

	_, err = Get(ctx, store, "seg/volume")
	assert.True(t, emerrors.Is(err, emerrors.ErrCodeNotFound))
}
