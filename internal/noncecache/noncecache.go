// Package noncecache implements the optional anti-replay extension
// named in spec.md §9: a bounded LRU of observed nonces per secret.
// Disabled by default; the Authenticator's documented contract
// (freshness enforced by the skew window alone) holds unless a caller
// opts in.
package noncecache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache tracks the most recently seen nonces, keyed by
// "secretID:nonce" so one cache can serve multiple routes' secrets.
// Entries are evicted by count (least recently used), not by age.
type Cache struct {
	lru *lru.Cache[string, struct{}]
}

// New builds a Cache holding up to size recently observed nonces.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 4096
	}
	l, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Seen records (secretID, nonce) and reports whether it was already
// present — a true result means the request is a replay.
func (c *Cache) Seen(secretID, nonce string) bool {
	key := secretID + ":" + nonce
	if _, ok := c.lru.Get(key); ok {
		return true
	}
	c.lru.Add(key, struct{}{})
	return false
}
