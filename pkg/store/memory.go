package store

import (
	"context"
	"strings"
	"sync"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
)

// MemoryStore is an in-process PersistentStore used in tests and as a
// fallback when no durable store is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailNext forces the next operation to return this error, letting tests
	// exercise the cache's degrade-to-recompute path.
	FailNext error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	value, ok := s.data[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string][]byte)
	for key, value := range s.data {
		if strings.HasPrefix(key, prefix) {
			cp := make([]byte, len(value))
			copy(cp, value)
			result[key] = cp
		}
	}
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ PersistentStore = (*MemoryStore)(nil)
