// Package cache provides a byte-budgeted LRU cache for expensive derived
// results, persisted through a PersistentStore.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
	"github.com/datalens-hq/insight-engine/pkg/models"
	"github.com/datalens-hq/insight-engine/pkg/store"
)

const (
	// DefaultMaxSize is the soft byte budget for all cached entries combined.
	DefaultMaxSize = 9 * 1024 * 1024

	// DefaultMinAge is the eviction floor: entries younger than this are
	// never evicted, even under budget pressure.
	DefaultMinAge = 30 * time.Minute

	entryPrefix = "insight:"
	metadataKey = "insight_meta"
)

// ResultCache caches serialized derived results under a strict byte budget
// with LRU eviction. All mutations are serialized through a single-writer
// queue so concurrent sets cannot interleave eviction and metadata updates
// and corrupt the running byte total.
type ResultCache struct {
	store   store.PersistentStore
	logger  *zap.Logger
	maxSize int64
	minAge  time.Duration
	now     func() time.Time

	ops  chan func()
	done chan struct{}
}

// Option customizes cache construction.
type Option func(*ResultCache)

// WithMaxSize overrides the byte budget.
func WithMaxSize(n int64) Option { return func(c *ResultCache) { c.maxSize = n } }

// WithMinAge overrides the eviction floor.
func WithMinAge(d time.Duration) Option { return func(c *ResultCache) { c.minAge = d } }

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option { return func(c *ResultCache) { c.now = now } }

// New creates a ResultCache over the given store and starts its writer
// goroutine. Call Close when done.
func New(st store.PersistentStore, logger *zap.Logger, opts ...Option) *ResultCache {
	c := &ResultCache{
		store:   st,
		logger:  logger.Named("result-cache"),
		maxSize: DefaultMaxSize,
		minAge:  DefaultMinAge,
		now:     time.Now,
		ops:     make(chan func()),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.writer()
	return c
}

// writer is the single goroutine through which every mutation runs.
func (c *ResultCache) writer() {
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.done:
			return
		}
	}
}

// submit runs op on the writer goroutine and waits for it to finish.
func (c *ResultCache) submit(ctx context.Context, op func() error) error {
	errCh := make(chan error, 1)
	select {
	case c.ops <- func() { errCh <- op() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errors.New("cache closed")
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer goroutine. It does not close the underlying store.
func (c *ResultCache) Close() {
	close(c.done)
}

// Get loads the cached value for key into dest. It returns false on a miss;
// a missing key is never an error. On a hit the entry's last-access time is
// refreshed and persisted.
func (c *ResultCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.store.Get(ctx, entryPrefix+key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, fmt.Errorf("%w: %s", apperrors.ErrCacheEntryCorrupted, key)
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return false, fmt.Errorf("%w: %s", apperrors.ErrCacheEntryCorrupted, key)
	}

	// Refresh recency through the writer so it cannot race a concurrent set.
	if err := c.submit(ctx, func() error { return c.touch(ctx, key) }); err != nil {
		c.logger.Warn("failed to refresh cache entry recency",
			zap.String("key", key), zap.Error(err))
	}
	return true, nil
}

// touch re-reads the entry inside the writer queue and persists a refreshed
// last-access time. Re-reading matters: a set or eviction serialized between
// the caller's read and this op must not be clobbered by a stale snapshot,
// so a missing entry is left missing and a replaced entry keeps its new data.
func (c *ResultCache) touch(ctx context.Context, key string) error {
	raw, err := c.store.Get(ctx, entryPrefix+key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload entry %s: %w", key, err)
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrCacheEntryCorrupted, key)
	}
	entry.LastAccessAt = c.now()
	updated, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return c.store.Set(ctx, entryPrefix+key, updated)
}

// Set serializes value, evicts if the byte budget requires it, and writes the
// entry plus updated metadata.
func (c *ResultCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize cache value: %w", err)
	}
	size := int64(len(data))

	return c.submit(ctx, func() error {
		meta, err := c.loadMetadata(ctx)
		if err != nil {
			return err
		}

		// Replacing an existing entry releases its bytes and removes the old
		// record in the same step, so the eviction pass below can never list
		// it as a victim and subtract its size a second time.
		if raw, err := c.store.Get(ctx, entryPrefix+key); err == nil {
			var old models.CacheEntry
			if json.Unmarshal(raw, &old) == nil {
				if err := c.store.Remove(ctx, entryPrefix+key); err != nil {
					return fmt.Errorf("replace cache entry %s: %w", key, err)
				}
				meta.TotalSize -= old.SizeBytes
				meta.EntryCount--
			}
		}

		meta, err = c.evictIfNeeded(ctx, meta, size)
		if err != nil {
			return err
		}

		now := c.now()
		entry := models.CacheEntry{
			Key:          key,
			Data:         data,
			CreatedAt:    now,
			LastAccessAt: now,
			SizeBytes:    size,
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		if err := c.store.Set(ctx, entryPrefix+key, raw); err != nil {
			return fmt.Errorf("cache set %s: %w", key, err)
		}

		meta.TotalSize += size
		meta.EntryCount++
		return c.saveMetadata(ctx, meta)
	})
}

// evictIfNeeded frees space for an incoming write by removing the least
// recently used entries that are older than the eviction floor. If nothing
// qualifies the write is allowed to exceed the soft budget.
func (c *ResultCache) evictIfNeeded(ctx context.Context, meta models.CacheMetadata, incoming int64) (models.CacheMetadata, error) {
	if meta.TotalSize+incoming <= c.maxSize {
		return meta, nil
	}

	all, err := c.store.List(ctx, entryPrefix)
	if err != nil {
		return meta, fmt.Errorf("list cache entries: %w", err)
	}

	entries := make([]models.CacheEntry, 0, len(all))
	for _, raw := range all {
		var entry models.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessAt.Before(entries[j].LastAccessAt)
	})

	needed := meta.TotalSize + incoming - c.maxSize
	now := c.now()
	var freed int64
	var victims []string
	for _, entry := range entries {
		if freed >= needed {
			break
		}
		if now.Sub(entry.LastAccessAt) <= c.minAge {
			continue
		}
		victims = append(victims, entryPrefix+entry.Key)
		freed += entry.SizeBytes
	}
	if len(victims) == 0 {
		c.logger.Debug("no entries old enough to evict, exceeding soft budget",
			zap.Int64("total_size", meta.TotalSize), zap.Int64("incoming", incoming))
		return meta, nil
	}

	if err := c.store.Remove(ctx, victims...); err != nil {
		return meta, fmt.Errorf("evict entries: %w", err)
	}
	meta.TotalSize -= freed
	meta.EntryCount -= len(victims)
	c.logger.Debug("evicted cache entries",
		zap.Int("count", len(victims)), zap.Int64("freed_bytes", freed))
	return meta, nil
}

// Clear removes every entry under the cache namespace and resets metadata.
func (c *ResultCache) Clear(ctx context.Context) error {
	return c.submit(ctx, func() error {
		all, err := c.store.List(ctx, entryPrefix)
		if err != nil {
			return fmt.Errorf("list cache entries: %w", err)
		}
		keys := make([]string, 0, len(all))
		for key := range all {
			keys = append(keys, key)
		}
		if len(keys) > 0 {
			if err := c.store.Remove(ctx, keys...); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
		}
		return c.saveMetadata(ctx, models.CacheMetadata{MaxSize: c.maxSize})
	})
}

// Metadata returns the current accounting record.
func (c *ResultCache) Metadata(ctx context.Context) (models.CacheMetadata, error) {
	return c.loadMetadata(ctx)
}

func (c *ResultCache) loadMetadata(ctx context.Context) (models.CacheMetadata, error) {
	raw, err := c.store.Get(ctx, metadataKey)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.CacheMetadata{MaxSize: c.maxSize}, nil
	}
	if err != nil {
		return models.CacheMetadata{}, fmt.Errorf("load cache metadata: %w", err)
	}
	var meta models.CacheMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return models.CacheMetadata{MaxSize: c.maxSize}, nil
	}
	return meta, nil
}

func (c *ResultCache) saveMetadata(ctx context.Context, meta models.CacheMetadata) error {
	meta.MaxSize = c.maxSize
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal cache metadata: %w", err)
	}
	if err := c.store.Set(ctx, metadataKey, raw); err != nil {
		return fmt.Errorf("save cache metadata: %w", err)
	}
	return nil
}
