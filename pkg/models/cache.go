package models

import (
	"time"

	"github.com/goccy/go-json"
)

// CacheEntry is one serialized derived result in the persistent store.
// SizeBytes is the exact serialized length of Data and is the number used by
// eviction accounting.
type CacheEntry struct {
	Key          string          `json:"key"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"created_at"`
	LastAccessAt time.Time       `json:"last_access_at"`
	SizeBytes    int64           `json:"size_bytes"`
}

// CacheMetadata is the single accounting record for the whole cache
// namespace. Invariant: after every successful set/eviction cycle,
// TotalSize equals the sum of all surviving entries' SizeBytes.
type CacheMetadata struct {
	TotalSize  int64 `json:"total_size"`
	MaxSize    int64 `json:"max_size"`
	EntryCount int   `json:"entry_count"`
}
