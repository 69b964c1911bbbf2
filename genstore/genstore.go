// Package genstore keeps cache epochs. A provider-backed cache stamps every
// entry with the epoch of its namespace; clearing the cache advances the epoch
// and every older entry reads as a miss.
package genstore

import (
	"context"
	"time"
)

// EpochStore abstracts where epochs live. Use Local for a single process and
// Redis when several processes share one provider.
type EpochStore interface {
	// Current returns the epoch of namespace; missing => 0.
	Current(ctx context.Context, namespace string) (uint64, error)
	// CurrentMany returns the epochs of many namespaces; missing => 0.
	CurrentMany(ctx context.Context, namespaces []string) (map[string]uint64, error)
	// Advance atomically increments and returns the epoch of namespace.
	Advance(ctx context.Context, namespace string) (uint64, error)
	// Prune drops epochs not advanced within retention (no-op for Redis).
	Prune(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
