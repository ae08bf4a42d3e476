// Package cache provides the model-response cache. Caching is best-effort:
// a miss or a failed write only costs a redundant model call, never
// correctness.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is the shared contract for model-response caching.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ExtractionKey derives the cache key for a model extraction from the
// document content hash and jurisdiction.
func ExtractionKey(contentHash, jurisdiction string) string {
	sum := sha256.Sum256([]byte(contentHash + "|" + jurisdiction))
	return "ruleforge:extraction:" + hex.EncodeToString(sum[:])
}
