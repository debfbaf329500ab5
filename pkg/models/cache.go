package models

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TokenCache is a bounded, expiring cache of resolved token principals
// keyed by the opaque credential. Every API request authenticates with a
// token; caching the resolution avoids three queries per request. Entries
// expire quickly so revocations and permission changes propagate.
type TokenCache struct {
	lru *expirable.LRU[string, *Token]
}

// NewTokenCache creates a token cache with the given capacity and TTL
func NewTokenCache(size int, ttl time.Duration) *TokenCache {
	return &TokenCache{lru: expirable.NewLRU[string, *Token](size, nil, ttl)}
}

// Get returns the cached principal for a credential
func (c *TokenCache) Get(id string) (*Token, bool) {
	return c.lru.Get(id)
}

// Put caches a resolved principal
func (c *TokenCache) Put(t *Token) {
	c.lru.Add(t.ID, t)
}

// Invalidate drops a credential, e.g. on revocation
func (c *TokenCache) Invalidate(id string) {
	c.lru.Remove(id)
}
