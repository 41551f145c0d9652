// Package common holds small cross-cutting helpers shared by the control
// plane packages.
//
// Cache wraps hashicorp/golang-lru the way the teacher's own common/cache.go
// does: a thin interface over an LRU, so callers never reference the lru
// package directly.
package common

import (
	"errors"

	lru "github.com/hashicorp/golang-lru"
)

// Cache is a bounded key/value cache.
type Cache interface {
	Add(key interface{}, value interface{}) (evicted bool)
	Get(key interface{}) (value interface{}, ok bool)
	Contains(key interface{}) bool
	Purge()
}

type lruCache struct {
	lru *lru.Cache
}

func (c *lruCache) Add(key, value interface{}) (evicted bool) { return c.lru.Add(key, value) }
func (c *lruCache) Get(key interface{}) (interface{}, bool)    { return c.lru.Get(key) }
func (c *lruCache) Contains(key interface{}) bool              { return c.lru.Contains(key) }
func (c *lruCache) Purge()                                     { c.lru.Purge() }

// NewLRUCache builds a fixed-capacity LRU cache. size must be positive.
func NewLRUCache(size int) (Cache, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruCache{lru: l}, nil
}
