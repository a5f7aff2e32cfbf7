// Package scancache keeps the results of scanning module sources so that
// rebuilds skip parsing modules whose source did not change.
package scancache

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the number of entries kept when no size is given.
const DefaultSize = 4096

// Cache is a fixed-size LRU keyed by file and source digest. It is safe for
// concurrent use.
type Cache[V any] struct {
	entries *lru.Cache[string, V]
}

// New creates a cache holding at most size entries.
func New[V any](size int) (*Cache[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{entries: entries}, nil
}

// Key derives the cache key of a module.
func Key(file string, source []byte) string {
	sum := sha256.Sum256(source)
	return file + "\x00" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.entries.Get(key)
}

// Put stores v under key.
func (c *Cache[V]) Put(key string, v V) {
	c.entries.Add(key, v)
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.entries.Purge()
}
