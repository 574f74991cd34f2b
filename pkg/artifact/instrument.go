package artifact

import (
	"context"
	"strings"

	"github.com/matzehuels/emerl/pkg/observability"
)

// Instrumented reports every read and write of the wrapped store to
// [observability.Store]. The hook kind is the first key segment, so
// "lut/tile/0_0_0" is reported as "lut".
type Instrumented struct {
	Store
}

// Instrument wraps s with store hooks.
func Instrument(s Store) *Instrumented {
	return &Instrumented{Store: s}
}

func keyKind(key string) string {
	kind, _, _ := strings.Cut(key, "/")
	return kind
}

// Get reads through to the wrapped store and reports a hit or miss.
func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		observability.Store().OnStoreHit(ctx, keyKind(key), len(data))
	} else {
		observability.Store().OnStoreMiss(ctx, keyKind(key))
	}
	return data, ok, nil
}

// Put writes through and reports the size.
func (s *Instrumented) Put(ctx context.Context, key string, data []byte) error {
	if err := s.Store.Put(ctx, key, data); err != nil {
		return err
	}
	observability.Store().OnStorePut(ctx, keyKind(key), len(data))
	return nil
}
