package volume

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/matzehuels/emerl/internal/binio"
	"github.com/matzehuels/emerl/pkg/artifact"
	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

const (
	volumeMagic   = "ERLV"
	volumeVersion = 1
)

// Write encodes v as a dense volume artifact.
func Write(w io.Writer, v Volume) error {
	bw, err := binio.NewWriter(w, volumeMagic, volumeVersion)
	if err != nil {
		return err
	}
	s := v.Shape()
	for _, d := range s {
		bw.Uint64(uint64(d))
	}
	if d, ok := v.(*Dense); ok {
		for _, id := range d.data {
			bw.Uint64(id)
		}
		return bw.Close()
	}
	for z := range s[0] {
		for y := range s[1] {
			for x := range s[2] {
				bw.Uint64(v.At(z, y, x))
			}
		}
	}
	return bw.Close()
}

// Read decodes a volume written by [Write].
func Read(r io.Reader) (*Dense, error) {
	br, _, err := binio.NewReader(r, volumeMagic)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	var s Shape
	for i := range s {
		s[i] = br.Count()
	}
	if err := br.Err(); err != nil {
		return nil, err
	}
	n := 1
	for _, d := range s {
		if d != 0 && n > binio.MaxElements/d {
			return nil, emerrors.New(emerrors.ErrCodeCorrupt, "volume %v too large", s)
		}
		n *= d
	}
	data := make([]uint64, n)
	for i := range data {
		data[i] = br.Uint64()
	}
	if err := br.Err(); err != nil {
		return nil, err
	}
	return NewDense(s, data)
}

// Put stores v in store under key.
func Put(ctx context.Context, store artifact.Store, key string, v Volume) error {
	var buf bytes.Buffer
	if err := Write(&buf, v); err != nil {
		return fmt.Errorf("encode volume %s: %w", key, err)
	}
	return store.Put(ctx, key, buf.Bytes())
}

// Get loads the volume stored under key.
func Get(ctx context.Context, store artifact.Store, key string) (*Dense, error) {
	data, err := artifact.MustGet(ctx, store, key)
	if err != nil {
		return nil, err
	}
	v, err := Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode volume %s: %w", key, err)
	}
	return v, nil
}

// StoreSlabs reads z-slabs saved as separate volume artifacts. The key of
// chunk i is fmt.Sprintf(KeyFormat, i). Only one slab is held in memory
// at a time.
type StoreSlabs struct {
	Store     artifact.Store
	KeyFormat string
	Chunks    int
}

// NumChunks returns the configured chunk count.
func (s *StoreSlabs) NumChunks() int { return s.Chunks }

// ReadChunk loads slab i from the store.
func (s *StoreSlabs) ReadChunk(ctx context.Context, i int) (Volume, error) {
	return Get(ctx, s.Store, fmt.Sprintf(s.KeyFormat, i))
}

// PutSlabs splits v into n z-slabs and stores each under KeyFormat.
// It returns the matching [StoreSlabs] source.
func PutSlabs(ctx context.Context, store artifact.Store, keyFormat string, v Volume, n int) (*StoreSlabs, error) {
	src, err := Split(v, n)
	if err != nil {
		return nil, err
	}
	for i := range n {
		slab, err := src.ReadChunk(ctx, i)
		if err != nil {
			return nil, err
		}
		if err := Put(ctx, store, fmt.Sprintf(keyFormat, i), slab); err != nil {
			return nil, err
		}
	}
	return &StoreSlabs{Store: store, KeyFormat: keyFormat, Chunks: n}, nil
}
