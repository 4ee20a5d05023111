package tools

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheTTL        = 15 * time.Minute
	defaultCacheMaxEntries = 100
)

// webCache memoizes formatted tool output. Entries expire after ttl and the
// least recently used entry is evicted at capacity.
type webCache struct {
	lru *expirable.LRU[string, string]
}

func newWebCache(maxSize int, ttl time.Duration) *webCache {
	if maxSize <= 0 {
		maxSize = defaultCacheMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &webCache{lru: expirable.NewLRU[string, string](maxSize, nil, ttl)}
}

func (c *webCache) get(key string) (string, bool) {
	return c.lru.Get(normalizeCacheKey(key))
}

func (c *webCache) set(key, value string) {
	c.lru.Add(normalizeCacheKey(key), value)
}

func normalizeCacheKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
