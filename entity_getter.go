package viewcache

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// EntityFetchFunc loads one entity from the remote service.
type EntityFetchFunc[P, T any] func(ctx context.Context, params P) (T, error)

// EntityGetterOptions configure an EntityGetter. Caches, Fetch and Key are required.
type EntityGetterOptions[P, T any] struct {
	Caches CacheResolver[P, T]
	Fetch  EntityFetchFunc[P, T]
	// Key returns the cache key of the entity params identify. It must agree
	// with the cache KeyFunc applied to the fetched entity.
	Key func(P) string

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// EntityGetter fetches single entities into their target cache. Concurrent
// fetches of the same entity share one call to the collaborator.
type EntityGetter[P, T any] struct {
	caches CacheResolver[P, T]
	fetch  EntityFetchFunc[P, T]
	key    func(P) string
	log    Logger
	hooks  Hooks

	group singleflight.Group
}

func NewEntityGetter[P, T any](opts EntityGetterOptions[P, T]) (*EntityGetter[P, T], error) {
	if opts.Caches == nil || opts.Fetch == nil || opts.Key == nil {
		return nil, fmt.Errorf("viewcache: entity getter needs Caches, Fetch and Key")
	}
	return &EntityGetter[P, T]{
		caches: opts.Caches,
		fetch:  opts.Fetch,
		key:    opts.Key,
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
	}, nil
}

// FetchOption tunes a single Fetch.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	cached bool
}

// WithCached answers from the cache when the entity is already there.
func WithCached() FetchOption { return func(o *fetchOptions) { o.cached = true } }

// Cache returns the target cache of params.
func (g *EntityGetter[P, T]) Cache(params P) (*Cache[T], error) { return g.caches.GetCache(params) }

// KeyOf returns the cache key of the entity params identify.
func (g *EntityGetter[P, T]) KeyOf(params P) string { return g.key(params) }

// Fetch returns the entity identified by params and stores it in its cache.
//
// The collaborator call is shared by every concurrent Fetch of the same entity
// and is not canceled with ctx; ctx only bounds how long this caller waits.
// Errors are returned as *ServerError. A 404 for an entity that was cached
// removes it from the cache.
func (g *EntityGetter[P, T]) Fetch(ctx context.Context, params P, opts ...FetchOption) (T, error) {
	var zero T
	var o fetchOptions
	for _, fn := range opts {
		fn(&o)
	}

	cache, err := g.caches.GetCache(params)
	if err != nil {
		return zero, err
	}
	key := g.key(params)
	if o.cached {
		if v, ok := cache.Get(key); ok {
			return v, nil
		}
	}

	callKey := g.caches.Target(params) + "|" + key
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(callKey, func() (any, error) {
		item, err := g.fetch(detached, params)
		if err != nil {
			if IsNotFound(err) && cache.Remove(key) {
				g.log.Info("entity gone from server, removed from cache", Fields{"ns": cache.Namespace(), "key": key})
			}
			g.hooks.FetchFailed("entity", callKey, err)
			return nil, AsServerError(err)
		}
		cache.Put(item)
		return item, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			g.hooks.FetchShared("entity", callKey)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
