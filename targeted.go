package viewcache

import (
	"fmt"
	"sort"
	"sync"
)

// TargetFunc maps request params to the cache partition they belong to,
// typically the parent resource id.
type TargetFunc[P any] func(P) string

// TargetedCache routes params to an independent Cache per target, created on
// first access. Node ids are only unique within a pool, so "nodes of pool a"
// and "nodes of pool b" must never share a Cache.
type TargetedCache[P, T any] struct {
	target TargetFunc[P]
	opts   CacheOptions[T]

	mu       sync.Mutex
	caches   map[string]*Cache[T]
	disposed bool
}

// NewTargetedCache returns a TargetedCache whose sub-caches are built from opts.
// Each sub-cache gets namespace "<opts.Namespace>:<target>".
func NewTargetedCache[P, T any](target TargetFunc[P], opts CacheOptions[T]) (*TargetedCache[P, T], error) {
	if target == nil {
		return nil, fmt.Errorf("viewcache: target func is required")
	}
	if opts.Key == nil {
		return nil, fmt.Errorf("viewcache: key func is required")
	}
	opts.Namespace = coalesce(opts.Namespace, defaultNamespace)
	return &TargetedCache[P, T]{
		target: target,
		opts:   opts,
		caches: make(map[string]*Cache[T]),
	}, nil
}

// Target returns the target key of params.
func (tc *TargetedCache[P, T]) Target(params P) string { return tc.target(params) }

// GetCache returns the cache for target(params), creating it when missing.
// Fails only when the configured store cannot be built.
func (tc *TargetedCache[P, T]) GetCache(params P) (*Cache[T], error) {
	key := tc.target(params)

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if c, ok := tc.caches[key]; ok {
		return c, nil
	}
	if tc.disposed {
		panic(ErrDisposed)
	}

	opts := tc.opts
	opts.Namespace = tc.opts.Namespace + ":" + key
	c, err := NewCache(opts)
	if err != nil {
		return nil, err
	}
	tc.caches[key] = c
	return c, nil
}

// Caches returns the sub-caches created so far, ordered by target key.
func (tc *TargetedCache[P, T]) Caches() []*Cache[T] {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	keys := make([]string, 0, len(tc.caches))
	for k := range tc.caches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Cache[T], len(keys))
	for i, k := range keys {
		out[i] = tc.caches[k]
	}
	return out
}

// Clear clears every sub-cache. The sub-caches stay registered.
func (tc *TargetedCache[P, T]) Clear() {
	for _, c := range tc.Caches() {
		c.Clear()
	}
}

// Dispose disposes every sub-cache. Idempotent.
func (tc *TargetedCache[P, T]) Dispose() {
	tc.mu.Lock()
	caches := tc.caches
	tc.caches = make(map[string]*Cache[T])
	tc.disposed = true
	tc.mu.Unlock()
	for _, c := range caches {
		c.Dispose()
	}
}

// CacheResolver resolves the cache and target key of params. *TargetedCache
// implements it; Single adapts one shared Cache.
type CacheResolver[P, T any] interface {
	GetCache(params P) (*Cache[T], error)
	Target(params P) string
}

// Single returns a CacheResolver that maps every params to c.
func Single[P, T any](c *Cache[T]) CacheResolver[P, T] { return singleCache[P, T]{c: c} }

type singleCache[P, T any] struct{ c *Cache[T] }

func (s singleCache[P, T]) GetCache(P) (*Cache[T], error) { return s.c, nil }
func (s singleCache[P, T]) Target(P) string               { return s.c.ns }
