package artifact

import (
	"context"
	"slices"
	"sync"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// MemoryStore keeps artifacts in a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Put stores a copy of data.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	if err := emerrors.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = slices.Clone(data)
	s.mu.Unlock()
	return nil
}

// Has reports whether key is present.
func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	return ok, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if err := emerrors.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Close does nothing for the memory store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
