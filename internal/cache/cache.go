package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrExists is returned by Add when an unexpired entry already holds the key
var ErrExists = errors.New("cache: key already present")

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	// Add stores value only if the key is absent or expired, else ErrExists
	Add(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Kind namespaces cached artifacts produced from the same URL
type Kind string

const (
	KindInvestigation Kind = "investigation"
	KindPagination    Kind = "pagination"
	KindSelectors     Kind = "selectors"
)

// CacheKey generates a cache key from a URL and an artifact kind
func CacheKey(url string, kind Kind) string {
	hash := sha256.Sum256([]byte(string(kind) + "\x00" + url))
	return "sitescout:v1:" + string(kind) + ":" + hex.EncodeToString(hash[:])
}
