// Package cache holds ranked search results keyed by normalized query and options.
package cache

import (
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperjump/kotoba/internal/models"
)

// DefaultSize is the default number of cached queries.
const DefaultSize = 1000

// ResultCache is a bounded LRU of result lists. It is safe for concurrent use.
// Entries never expire; callers Purge when the underlying indices change.
type ResultCache struct {
	lru    *lru.Cache[string, []models.SearchResult]
	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache usage.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// New creates a cache holding up to size entries.
func New(size int) (*ResultCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, []models.SearchResult](size)
	if err != nil {
		return nil, err
	}
	return &ResultCache{lru: c}, nil
}

// Key builds the cache key for a normalized query and the effective options that
// shape its results. The result limit is not part of it: entries hold the full list.
func Key(normalized string, languages []string, minScore float64, semantic, broad bool) string {
	langs := slices.Clone(languages)
	slices.Sort(langs)
	var b strings.Builder
	b.WriteString(normalized)
	b.WriteByte(0x1f)
	b.WriteString(strings.Join(langs, ","))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(minScore, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(semantic))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(broad))
	return b.String()
}

// Get returns a copy of the cached results for key.
func (c *ResultCache) Get(key string) ([]models.SearchResult, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return slices.Clone(v), true
}

// Put stores a copy of results under key.
func (c *ResultCache) Put(key string, results []models.SearchResult) {
	c.lru.Add(key, slices.Clone(results))
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached queries.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// Stats returns current usage counters.
func (c *ResultCache) Stats() Stats {
	return Stats{Size: c.lru.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
