package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the process-local artifact tier. Values are copied on the
// way in and out so a caller holding a slice cannot corrupt the entry.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory tier whose entries expire after ttl and are
// swept every sweep interval
func NewMemoryCache(ttl time.Duration, sweep time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(ttl, sweep)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	raw, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	data, ok := raw.([]byte)
	if !ok {
		c.items.Delete(key)
		return nil, false
	}
	return clone(data), true
}

// GetWithTTL reports the time left on the entry; 0 means it never expires
func (c *MemoryCache) GetWithTTL(key string) ([]byte, time.Duration, bool) {
	raw, expires, ok := c.items.GetWithExpiration(key)
	if !ok {
		return nil, 0, false
	}
	data, ok := raw.([]byte)
	if !ok {
		c.items.Delete(key)
		return nil, 0, false
	}
	var remaining time.Duration
	if !expires.IsZero() {
		remaining = time.Until(expires)
		if remaining <= 0 {
			return nil, 0, false
		}
	}
	return clone(data), remaining, true
}

func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.items.Set(key, clone(value), expiry(ttl))
	return nil
}

// Add keeps the first writer's value; go-cache treats expired keys as absent
func (c *MemoryCache) Add(key string, value []byte, ttl time.Duration) error {
	if c.items.Add(key, clone(value), expiry(ttl)) != nil {
		return ErrExists
	}
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Len reports live and not-yet-swept entries
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.DefaultExpiration
	}
	return ttl
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
