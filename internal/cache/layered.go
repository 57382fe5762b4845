package cache

import "time"

// promoteTTL caps how long a disk hit lives in memory. A promoted entry never
// outlives the copy it was read from.
const promoteTTL = 5 * time.Minute

// expiringTier is a tier that can report the time left on an entry
type expiringTier interface {
	GetWithTTL(key string) ([]byte, time.Duration, bool)
}

// LayeredCache reads through an ordered list of tiers, fastest first.
// A hit in a slower tier is copied into every faster tier it skipped.
type LayeredCache struct {
	tiers []Cache
}

// NewLayeredCache stacks a memory tier over a disk tier rooted at diskDir
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return NewTiered(
		NewMemoryCache(memoryTTL, 10*time.Minute),
		NewDiskCache(diskDir, diskTTL),
	)
}

// NewTiered builds a layered cache from arbitrary tiers; nil tiers are skipped
func NewTiered(tiers ...Cache) *LayeredCache {
	c := &LayeredCache{}
	for _, t := range tiers {
		if t != nil {
			c.tiers = append(c.tiers, t)
		}
	}
	return c
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	for i, tier := range c.tiers {
		data, remaining, ok := getWithTTL(tier, key)
		if !ok {
			continue
		}
		ttl := promoteTTL
		if remaining > 0 && remaining < ttl {
			ttl = remaining
		}
		for _, faster := range c.tiers[:i] {
			_ = faster.Set(key, data, ttl)
		}
		return data, true
	}
	return nil, false
}

// getWithTTL returns 0 remaining when the tier cannot tell
func getWithTTL(tier Cache, key string) ([]byte, time.Duration, bool) {
	if et, ok := tier.(expiringTier); ok {
		return et.GetWithTTL(key)
	}
	data, ok := tier.Get(key)
	return data, 0, ok
}

// Set writes every tier and reports the first failure
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	var first error
	for _, tier := range c.tiers {
		if err := tier.Set(key, value, ttl); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Add claims the key in the slowest tier, which is the one shared between
// processes, then fills the faster tiers
func (c *LayeredCache) Add(key string, value []byte, ttl time.Duration) error {
	if len(c.tiers) == 0 {
		return nil
	}
	if _, ok := c.Get(key); ok {
		return ErrExists
	}
	last := len(c.tiers) - 1
	if err := c.tiers[last].Add(key, value, ttl); err != nil {
		return err
	}
	for _, tier := range c.tiers[:last] {
		_ = tier.Set(key, value, ttl)
	}
	return nil
}

func (c *LayeredCache) Delete(key string) error {
	var first error
	for _, tier := range c.tiers {
		if err := tier.Delete(key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *LayeredCache) Clear() error {
	var first error
	for _, tier := range c.tiers {
		if err := tier.Clear(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
