package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultArtifactTTL is how long reports and selector maps stay cached
const DefaultArtifactTTL = 15 * time.Minute

// LookupRecorder observes cache lookups (metrics hook)
type LookupRecorder interface {
	CacheLookup(kind string, hit bool)
}

// Artifacts is a typed read-through cache for pipeline artifacts.
// Entries are stored as encoded bytes and decoded into a fresh value on every
// read, so callers can never mutate a cached artifact. The first writer for a
// key wins; later writers receive the stored value.
type Artifacts struct {
	backend  Cache
	ttl      time.Duration
	recorder LookupRecorder
}

// NewArtifacts wraps a backend cache. A nil backend disables caching.
func NewArtifacts(backend Cache, ttl time.Duration, recorder LookupRecorder) *Artifacts {
	if ttl <= 0 {
		ttl = DefaultArtifactTTL
	}
	return &Artifacts{backend: backend, ttl: ttl, recorder: recorder}
}

// Load returns the cached artifact for (url, kind), computing and storing it on a miss.
// The boolean reports whether the value came from the cache.
func Load[T any](ctx context.Context, a *Artifacts, url string, kind Kind, compute func(context.Context) (*T, error)) (*T, bool, error) {
	if a == nil || a.backend == nil {
		v, err := compute(ctx)
		return v, false, err
	}

	key := CacheKey(url, kind)
	if data, ok := a.backend.Get(key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			a.record(kind, true)
			return &v, true, nil
		}
		_ = a.backend.Delete(key)
	}
	a.record(kind, false)

	v, err := compute(ctx)
	if err != nil || v == nil {
		return v, false, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v, false, fmt.Errorf("encode %s artifact: %w", kind, err)
	}

	if err := a.backend.Add(key, data, a.ttl); err != nil {
		if !errors.Is(err, ErrExists) {
			return v, false, fmt.Errorf("store %s artifact: %w", kind, err)
		}
		// Lost the race: return the value that got there first
		if stored, ok := a.backend.Get(key); ok {
			var first T
			if json.Unmarshal(stored, &first) == nil {
				return &first, true, nil
			}
		}
	}

	return v, false, nil
}

func (a *Artifacts) record(kind Kind, hit bool) {
	if a.recorder != nil {
		a.recorder.CacheLookup(string(kind), hit)
	}
}
