package describe

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of descriptions kept by NewCached when size <= 0.
const DefaultCacheSize = 1024

type cacheKey struct {
	column   string
	dataType string
	context  string
}

// Cached memoises successful descriptions of identical requests. Sentinel
// results are never stored, so a failed column is asked again next time.
type Cached struct {
	next  Describer
	cache *lru.Cache[cacheKey, string]
}

// NewCached wraps next with an LRU cache.
func NewCached(next Describer, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create description cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Describe implements Describer.
func (c *Cached) Describe(ctx context.Context, req Request) string {
	key := cacheKey{column: req.Column, dataType: req.DataType, context: req.Context}
	if desc, ok := c.cache.Get(key); ok {
		return desc
	}

	desc := c.next.Describe(ctx, req)
	if !IsSentinel(desc) {
		c.cache.Add(key, desc)
	}
	return desc
}

// Len returns the number of cached descriptions.
func (c *Cached) Len() int {
	return c.cache.Len()
}
