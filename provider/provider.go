// Package provider defines the byte store behind provider-backed caches.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for a key. Any internal transform
// (compression, encryption) must be fully reversed on Get.
//
// The keyspaces "entity:<ns>:" and "epoch:<ns>" belong to viewcache. Values
// written there by other code fail frame validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// IO or remote failures return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl (<= 0 => no expiry). Stores without cost
	// accounting ignore cost. ok=false means the write was rejected under
	// pressure; the entry is simply absent.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
