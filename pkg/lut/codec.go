package lut

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
	tileMagic    = "ERLT"
	lookupMagic  = "ERLL"
	maskMagic    = "ERLM"
	codecVersion = 1
)

// Default keys for the combined lookup and the mask support.
const (
	DefaultLookupKey = "lut/lookup"
	DefaultMaskKey   = "lut/mask"
)

// WriteTile encodes a tile artifact.
func WriteTile(w io.Writer, a *TileArtifact) error {
	bw, err := binio.NewWriter(w, tileMagic, codecVersion)
	if err != nil {
		return err
	}
	bw.Uint64(uint64(len(a.Include)))
	bw.Bools(a.Include)
	bw.Uint64(uint64(len(a.Values)))
	for _, v := range a.Values {
		bw.Uint64(v)
	}
	return bw.Close()
}

// ReadTile decodes a tile artifact and checks that the value count
// matches the number of included nodes.
func ReadTile(r io.Reader) (*TileArtifact, error) {
	br, _, err := binio.NewReader(r, tileMagic)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	a := &TileArtifact{}
	a.Include = br.Bools(br.Count())
	n := br.Count()
	if err := br.Err(); err != nil {
		return nil, err
	}
	included := 0
	for _, in := range a.Include {
		if in {
			included++
		}
	}
	if n != included {
		return nil, emerrors.New(emerrors.ErrCodeCorrupt,
			"tile has %d values for %d included nodes", n, included)
	}
	a.Values = make([]uint64, n)
	for i := range a.Values {
		a.Values[i] = br.Uint64()
	}
	if err := br.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// WriteLookup encodes a lookup table.
func WriteLookup(w io.Writer, lookup []uint64) error {
	bw, err := binio.NewWriter(w, lookupMagic, codecVersion)
	if err != nil {
		return err
	}
	bw.Uint64(uint64(len(lookup)))
	for _, v := range lookup {
		bw.Uint64(v)
	}
	return bw.Close()
}

// ReadLookup decodes a lookup table.
func ReadLookup(r io.Reader) ([]uint64, error) {
	br, _, err := binio.NewReader(r, lookupMagic)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	n := br.Count()
	if err := br.Err(); err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = br.Uint64()
	}
	if err := br.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteMask encodes mask support as (id, count) pairs in ascending id
// order.
func WriteMask(w io.Writer, m MaskSupport) error {
	bw, err := binio.NewWriter(w, maskMagic, codecVersion)
	if err != nil {
		return err
	}
	ids := m.IDs()
	bw.Uint64(uint64(len(ids)))
	for _, id := range ids {
		bw.Uint64(id)
		bw.Uint64(uint64(m[id]))
	}
	return bw.Close()
}

// ReadMask decodes mask support.
func ReadMask(r io.Reader) (MaskSupport, error) {
	br, _, err := binio.NewReader(r, maskMagic)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	n := br.Count()
	if err := br.Err(); err != nil {
		return nil, err
	}
	m := make(MaskSupport, n)
	for range n {
		id := br.Uint64()
		m[id] = int(br.Uint64())
	}
	if err := br.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func put(ctx context.Context, store artifact.Store, key string, enc func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := enc(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Put(ctx, key, buf.Bytes())
}

func get[T any](ctx context.Context, store artifact.Store, key string, dec func(io.Reader) (T, error)) (T, error) {
	var zero T
	data, err := artifact.MustGet(ctx, store, key)
	if err != nil {
		return zero, err
	}
	v, err := dec(bytes.NewReader(data))
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// PutTile stores a tile artifact under key.
func PutTile(ctx context.Context, store artifact.Store, key string, a *TileArtifact) error {
	return put(ctx, store, key, func(w io.Writer) error { return WriteTile(w, a) })
}

// GetTile loads the tile artifact stored under key.
func GetTile(ctx context.Context, store artifact.Store, key string) (*TileArtifact, error) {
	return get(ctx, store, key, ReadTile)
}

// PutLookup stores a lookup under key.
func PutLookup(ctx context.Context, store artifact.Store, key string, lookup []uint64) error {
	return put(ctx, store, key, func(w io.Writer) error { return WriteLookup(w, lookup) })
}

// GetLookup loads the lookup stored under key.
func GetLookup(ctx context.Context, store artifact.Store, key string) ([]uint64, error) {
	return get(ctx, store, key, ReadLookup)
}

// PutMask stores mask support under key.
func PutMask(ctx context.Context, store artifact.Store, key string, m MaskSupport) error {
	return put(ctx, store, key, func(w io.Writer) error { return WriteMask(w, m) })
}

// GetMask loads the mask support stored under key.
func GetMask(ctx context.Context, store artifact.Store, key string) (MaskSupport, error) {
	return get(ctx, store, key, ReadMask)
}
