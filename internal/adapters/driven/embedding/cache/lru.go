package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU is an in-process backend bounded by entry count and age.
type LRU struct {
	lru *expirable.LRU[string, []float32]
}

// NewLRU creates an LRU backend holding at most size vectors for ttl.
// A zero ttl keeps entries until evicted by size.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{lru: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

// Get returns the vector for key.
func (c *LRU) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

// Set stores the vector for key.
func (c *LRU) Set(_ context.Context, key string, vector []float32) error {
	c.lru.Add(key, vector)
	return nil
}

// Len returns the number of cached vectors.
func (c *LRU) Len() int {
	return c.lru.Len()
}

// Close purges the cache.
func (c *LRU) Close() error {
	c.lru.Purge()
	return nil
}
