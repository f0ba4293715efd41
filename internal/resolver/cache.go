package resolver

import (
	"strings"
	"sync"
)

// Cache maps path variants to resolved data URIs. One resolved asset is
// registered under every variant it may be referenced by, because chapters
// of the same book routinely spell the same image differently.
type Cache struct {
	mu     sync.RWMutex
	exact  map[string]string
	folded map[string]string // lower-cased key -> data URI
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		exact:  make(map[string]string),
		folded: make(map[string]string),
	}
}

// Register maps every key to uri. A key that is already registered keeps
// its first value, so registration order decides collisions between
// distinct assets sharing a loose variant such as a bare filename.
func (c *Cache) Register(keys []string, uri string) {
	if uri == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, exists := c.exact[k]; !exists {
			c.exact[k] = uri
		}
		lk := strings.ToLower(k)
		if _, exists := c.folded[lk]; !exists {
			c.folded[lk] = uri
		}
	}
}

// Lookup returns the data URI registered under key.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uri, ok := c.exact[key]
	return uri, ok
}

// LookupAny returns the data URI of the first key that is registered,
// trying exact matches for all keys before case-insensitive ones.
func (c *Cache) LookupAny(keys []string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, k := range keys {
		if uri, ok := c.exact[k]; ok {
			return uri, true
		}
	}
	for _, k := range keys {
		if uri, ok := c.folded[strings.ToLower(k)]; ok {
			return uri, true
		}
	}
	return "", false
}

// Len returns the number of registered keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.exact)
}
