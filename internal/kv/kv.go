// Package kv defines the key-value persistence contract used by the local
// encrypted secret backend. Implementations live in the redis and memory
// subpackages.
package kv

import (
	"context"
	"errors"
)

// Type represents the type of key-value backend.
type Type string

const (
	TypeMemory Type = "memory" // In-process store
	TypeRedis  Type = "redis"  // Redis store
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a get/set/delete-by-key store with set membership support.
// Values written through Store never expire.
type Store interface {
	// Get retrieves a value.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value without expiry, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SetAdd adds member to the set stored at key.
	SetAdd(ctx context.Context, key, member string) error

	// SetRemove removes member from the set stored at key.
	SetRemove(ctx context.Context, key, member string) error

	// SetMembers returns all members of the set stored at key.
	// A missing set yields an empty slice.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error

	// Stats returns store statistics.
	Stats() Stats
}

// Stats holds store statistics for monitoring.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// HitRate computes hits / (hits + misses), zero when nothing was read.
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
