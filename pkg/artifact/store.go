// Package artifact provides keyed byte storage for intermediate ERL
// artifacts: graph tables, segmentation slabs and tiles, lookup tables
// and mask supports.
//
// Every backend implements [Store]. Keys are slash-separated relative
// names such as "lut/tile/0_1_2" and are validated with
// [emerrors.ValidateKey] before use.
//
// Backends:
//   - [MemoryStore] for tests and single-process runs
//   - [FileStore] for a local directory of artifacts
//   - [BadgerStore] for an embedded key-value database
//   - [RedisStore] and [MongoStore] for shared storage between workers
//
// [Open] selects a backend from a location string.
package artifact

import (
	"context"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// Store is a keyed byte store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the stored bytes and true, or nil and false when the
	// key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Has reports whether key exists without reading its value.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// MustGet returns the bytes stored under key, or a NOT_FOUND error when
// the key is absent.
func MustGet(ctx context.Context, s Store, key string) ([]byte, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, emerrors.New(emerrors.ErrCodeNotFound, "artifact %q not found", key)
	}
	return data, nil
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if emerrors.GetCode(err) != "" {
		return err
	}
	return emerrors.Wrap(emerrors.ErrCodeStorage, err, "%s %q", op, key)
}
