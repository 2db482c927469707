// Package store provides the flat key/value persistence layer behind the
// result cache.
package store

import "context"

// PersistentStore is an async flat key/value store. Keys are namespaced by
// the caller (the cache prefixes everything with "insight:").
type PersistentStore interface {
	// Get returns the value for key, or apperrors.ErrNotFound on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the given keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error

	// List returns every key/value pair whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Close releases the store.
	Close() error
}
