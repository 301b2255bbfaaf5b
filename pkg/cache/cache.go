// Package cache provides pluggable byte-value caching used for crates.io
// HTTP responses and registry name resolutions.
//
// Backends:
//   - MemoryCache: process-wide map, the default for a single CLI run
//   - FileCache: persists across runs under a cache directory
//   - RedisCache: shared cache for serve mode with multiple instances
//   - NullCache: disables caching
//
// All backends are safe for concurrent use.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores opaque byte values under string keys with optional expiry.
type Cache interface {
	// Get retrieves a value. The second return value reports whether the
	// key was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
