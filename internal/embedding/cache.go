package embedding

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// EmbeddingCache is a bounded in-memory cache for embeddings keyed by text.
// Admission is cost based; every entry costs 1, so capacity is an entry count.
type EmbeddingCache struct {
	cache *ristretto.Cache
}

// NewEmbeddingCache creates a new cache holding about capacity entries.
func NewEmbeddingCache(capacity int64) (*EmbeddingCache, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,

		// Cost counts entries, not ristretto's per-item bookkeeping.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingCache{cache: c}, nil
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

// Set stores the embedding for key. Sets are buffered; call Wait to make them visible.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.cache.Set(key, value, 1)
}

// Wait blocks until buffered sets are applied.
func (c *EmbeddingCache) Wait() {
	c.cache.Wait()
}

// Clear drops every entry.
func (c *EmbeddingCache) Clear() {
	c.cache.Clear()
}

// Close stops the cache's background goroutines.
func (c *EmbeddingCache) Close() {
	c.cache.Close()
}
