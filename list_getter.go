package viewcache

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/singleflight"
)

// ListFunc loads the first page of a list.
type ListFunc[P, T any] func(ctx context.Context, params P, opts ListOptions) (Page[T], error)

// ListNextFunc loads the page behind nextLink.
type ListNextFunc[T any] func(ctx context.Context, nextLink string) (Page[T], error)

// ListGetterOptions configure a ListGetter. Caches, List and ListNext are required.
type ListGetterOptions[P, T any] struct {
	Caches   CacheResolver[P, T]
	List     ListFunc[P, T]
	ListNext ListNextFunc[T]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// ListGetter fetches pages of a list into the target cache. It keeps no
// paging state: the continuation token belongs to the caller.
type ListGetter[P, T any] struct {
	caches   CacheResolver[P, T]
	list     ListFunc[P, T]
	listNext ListNextFunc[T]
	log      Logger
	hooks    Hooks

	group singleflight.Group
}

func NewListGetter[P, T any](opts ListGetterOptions[P, T]) (*ListGetter[P, T], error) {
	if opts.Caches == nil || opts.List == nil || opts.ListNext == nil {
		return nil, fmt.Errorf("viewcache: list getter needs Caches, List and ListNext")
	}
	return &ListGetter[P, T]{
		caches:   opts.Caches,
		list:     opts.List,
		listNext: opts.ListNext,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}, nil
}

// Cache returns the target cache of params.
func (g *ListGetter[P, T]) Cache(params P) (*Cache[T], error) { return g.caches.GetCache(params) }

// QueryKey identifies the query of params and opts in the query cache.
func (g *ListGetter[P, T]) QueryKey(params P, opts ListOptions) string {
	return g.caches.Target(params) + "|" + opts.Key()
}

// FetchFromCache answers page 1 from the query cache. It misses when the
// entry expired or one of its entities is no longer cached.
func (g *ListGetter[P, T]) FetchFromCache(params P, opts ListOptions) (ListResponse[P, T], bool) {
	cache, err := g.caches.GetCache(params)
	if err != nil {
		return ListResponse[P, T]{}, false
	}
	cq, ok := cache.Queries().Get(g.QueryKey(params, opts))
	if !ok {
		return ListResponse[P, T]{}, false
	}
	items := cache.lookup(cq.Keys)
	if len(items) != len(cq.Keys) {
		return ListResponse[P, T]{}, false
	}
	return g.response(params, opts, items, cq.NextLink), true
}

// Fetch loads page 1. Unless forceNew is set, a query-cache hit is returned
// without a network call.
func (g *ListGetter[P, T]) Fetch(ctx context.Context, params P, opts ListOptions, forceNew bool) (ListResponse[P, T], error) {
	if !forceNew {
		if resp, ok := g.FetchFromCache(params, opts); ok {
			return resp, nil
		}
	}
	cache, err := g.caches.GetCache(params)
	if err != nil {
		return ListResponse[P, T]{}, err
	}

	query := g.QueryKey(params, opts)
	detached := context.WithoutCancel(ctx)
	return g.do(ctx, "first|"+query, func() (ListResponse[P, T], error) {
		page, err := g.list(detached, params, opts)
		if err != nil {
			return ListResponse[P, T]{}, err
		}
		keys, items := pageItems(cache, page.Items, opts.SelectFields())
		cache.Queries().Set(query, keys, page.NextLink)
		return g.response(params, opts, items, page.NextLink), nil
	})
}

// FetchNext loads the page token points at. A terminal token yields an empty
// response.
func (g *ListGetter[P, T]) FetchNext(ctx context.Context, token *ContinuationToken[P]) (ListResponse[P, T], error) {
	if token.Done() {
		return ListResponse[P, T]{Items: []T{}}, nil
	}
	params, opts := token.Params, token.Options
	cache, err := g.caches.GetCache(params)
	if err != nil {
		return ListResponse[P, T]{}, err
	}

	query := g.QueryKey(params, opts)
	link := token.NextLink
	detached := context.WithoutCancel(ctx)
	return g.do(ctx, "next|"+query+"|"+link, func() (ListResponse[P, T], error) {
		page, err := g.listNext(detached, link)
		if err != nil {
			return ListResponse[P, T]{}, err
		}
		keys, items := pageItems(cache, page.Items, opts.SelectFields())
		cache.Queries().Append(query, keys, page.NextLink)
		return g.response(params, opts, items, page.NextLink), nil
	})
}

// FetchAll drains every page of the query, calling onProgress (if not nil)
// after each one. An entity listed on several pages keeps the position of its
// first appearance and the value of its last. opts.MaxResults caps the result.
// A failed page aborts the drain with a *FetchAllError.
func (g *ListGetter[P, T]) FetchAll(ctx context.Context, params P, opts ListOptions, onProgress func(Progress)) ([]T, error) {
	cache, err := g.caches.GetCache(params)
	if err != nil {
		return nil, err
	}

	var (
		order  []string
		latest = make(map[string]T)
		pages  int
	)
	capped := func() bool { return opts.MaxResults > 0 && len(order) >= opts.MaxResults }

	resp, err := g.Fetch(ctx, params, opts, true)
	for {
		if err != nil {
			return nil, &FetchAllError{Pages: pages, Items: len(order), Err: err}
		}
		pages++
		for _, item := range resp.Items {
			k := cache.KeyOf(item)
			if _, seen := latest[k]; !seen {
				order = append(order, k)
			}
			latest[k] = item
		}
		last := !resp.HasMore || capped()
		if onProgress != nil {
			n := len(order)
			if opts.MaxResults > 0 {
				n = min(n, opts.MaxResults)
			}
			onProgress(Progress{Pages: pages, Items: n, Fraction: fraction(n, opts.MaxResults, last)})
		}
		if last {
			break
		}
		resp, err = g.FetchNext(ctx, resp.Next)
	}

	if opts.MaxResults > 0 && len(order) > opts.MaxResults {
		order = order[:opts.MaxResults]
	}
	out := make([]T, len(order))
	for i, k := range order {
		out[i] = latest[k]
	}
	g.log.Debug("list drained", Fields{"ns": cache.Namespace(), "pages": pages, "items": len(out)})
	return out, nil
}

func (g *ListGetter[P, T]) do(ctx context.Context, callKey string, fn func() (ListResponse[P, T], error)) (ListResponse[P, T], error) {
	ch := g.group.DoChan(callKey, func() (any, error) {
		resp, err := fn()
		if err != nil {
			g.hooks.FetchFailed("list", callKey, err)
			return nil, AsServerError(err)
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return ListResponse[P, T]{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			g.hooks.FetchShared("list", callKey)
		}
		if res.Err != nil {
			return ListResponse[P, T]{}, res.Err
		}
		return res.Val.(ListResponse[P, T]), nil
	}
}

func (g *ListGetter[P, T]) response(params P, opts ListOptions, items []T, nextLink string) ListResponse[P, T] {
	resp := ListResponse[P, T]{Items: items, HasMore: nextLink != ""}
	if resp.HasMore {
		resp.Next = &ContinuationToken[P]{NextLink: nextLink, Params: params, Options: opts}
	}
	return resp
}

// pageItems caches a page and returns its unique keys and items. An entity
// listed twice keeps its first position and its last value. Items are read
// back from the cache so merged fields show; an item the store did not keep
// comes from the page itself.
func pageItems[T any](cache *Cache[T], items []T, fields []string) ([]string, []T) {
	keys := cache.PutAll(items, fields)
	fetched := make(map[string]T, len(items))
	for i, item := range items {
		fetched[keys[i]] = item
	}
	keys = appendUnique(nil, keys)
	return keys, cache.lookupOr(keys, fetched)
}

func fraction(items, max int, last bool) float64 {
	switch {
	case max > 0:
		return math.Min(1, float64(items)/float64(max))
	case last:
		return 1
	default:
		return -1
	}
}
