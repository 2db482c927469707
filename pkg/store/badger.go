package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
)

// BadgerStore implements PersistentStore on top of BadgerDB, giving cache
// entries durability across restarts.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens (or creates) a Badger database at dir.
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db, logger: logger.Named("badger-store")}, nil
}

// Get returns the value for key, or apperrors.ErrNotFound on a miss.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set writes the value for key.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Remove deletes the given keys. Missing keys are ignored.
func (s *BadgerStore) Remove(ctx context.Context, keys ...string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// List returns every key/value pair whose key starts with prefix.
func (s *BadgerStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value for %s: %w", key, err)
			}
			result[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ PersistentStore = (*BadgerStore)(nil)
