package viewcache

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// ListViewOptions configure a ListView. Getter is required.
type ListViewOptions[P, T any] struct {
	Getter  *ListGetter[P, T]
	Options ListOptions // initial list options

	// Match filters items the list learns about outside a page fetch
	// (LoadNewItem, fixed keys) against an active Filter. nil => accept all.
	Match func(item T, opts ListOptions) bool

	PollInterval time.Duration   // 0 => no polling
	PollAll      bool            // poll with RefreshAll instead of Refresh
	Clock        clockwork.Clock // nil => real clock
	// OnError may return false to ignore an error: the view goes Ready and
	// the error stream stays quiet.
	OnError func(*ServerError) bool

	Tracker *Tracker
	Logger  Logger
	Hooks   Hooks
}

// ListView accumulates the pages of one list query for a screen. Items are
// read through the cache, so entity updates from other views show up in place.
// Changing params or options resets the list to page 1.
type ListView[P, T any] struct {
	*view
	getter  *ListGetter[P, T]
	match   func(T, ListOptions) bool
	pollAll bool

	mu        sync.Mutex
	params    P
	hasParams bool
	opts      ListOptions
	cache     *Cache[T]
	token     *ContinuationToken[P]
	more      bool
	replace   bool         // the next page replaces keys instead of appending
	keys      []string     // accumulated, de-duplicated
	fetched   map[string]T // last fetched value per key, for keys the store did not keep
	fixed     []string

	pubMu   sync.Mutex // orders snapshot+publish of items
	items   *Stream[[]T]
	hasMore *Stream[bool]

	group singleflight.Group
}

func NewListView[P, T any](opts ListViewOptions[P, T]) (*ListView[P, T], error) {
	if opts.Getter == nil {
		return nil, fmt.Errorf("viewcache: list view needs a Getter")
	}
	l := &ListView[P, T]{
		view: newView(viewConfig{
			kind:     KindListView,
			interval: opts.PollInterval,
			clock:    opts.Clock,
			onError:  opts.OnError,
			tracker:  opts.Tracker,
			logger:   opts.Logger,
			hooks:    opts.Hooks,
		}),
		getter:  opts.Getter,
		match:   opts.Match,
		pollAll: opts.PollAll,
		opts:    opts.Options.Clone(),
		more:    true,
		items:   NewReplayStream[[]T](),
		hasMore: NewReplayStream[bool](),
	}
	l.items.Publish([]T{})
	l.hasMore.Publish(true)
	l.tracker.register(l.id, KindListView, l.Dispose, nil)
	return l, nil
}

// Items emits the accumulated list. It replays the current list on Subscribe.
func (l *ListView[P, T]) Items() *Stream[[]T] { return l.items }

// HasMore emits whether another page can be fetched.
func (l *ListView[P, T]) HasMore() *Stream[bool] { return l.hasMore }

// Value returns the current accumulated list.
func (l *ListView[P, T]) Value() []T {
	l.ensureLive()
	items, _ := l.items.Value()
	return items
}

// Params returns the current params.
func (l *ListView[P, T]) Params() (P, bool) {
	l.ensureLive()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params, l.hasParams
}

// Options returns a copy of the current list options.
func (l *ListView[P, T]) Options() ListOptions {
	l.ensureLive()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts.Clone()
}

// SetParams points the list at params and resets it. Nothing is fetched
// until FetchNext or FetchAll. The first call starts the poll loop.
func (l *ListView[P, T]) SetParams(params P) error {
	l.ensureLive()
	cache, err := l.getter.Cache(params)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.params, l.hasParams = params, true
	l.cache = cache
	l.mu.Unlock()

	l.watch(cache)
	l.reset(true)
	l.markNewData()
	l.startPoll(l.pollTick)
	return nil
}

// SetOptions replaces the list options and resets the list.
func (l *ListView[P, T]) SetOptions(opts ListOptions) {
	l.ensureLive()
	l.mu.Lock()
	l.opts = opts.Clone()
	l.mu.Unlock()
	l.reset(true)
}

// PatchOptions applies fn to a copy of the current options, then behaves
// like SetOptions.
func (l *ListView[P, T]) PatchOptions(fn func(*ListOptions)) {
	l.ensureLive()
	l.mu.Lock()
	opts := l.opts.Clone()
	l.mu.Unlock()
	fn(&opts)
	l.SetOptions(opts)
}

// SetFixedKeys pins keys to the top of the list, ahead of fetched items.
func (l *ListView[P, T]) SetFixedKeys(keys []string) {
	l.ensureLive()
	l.mu.Lock()
	l.fixed = slices.Clone(keys)
	l.mu.Unlock()
	l.publishItems()
}

// FetchNext loads the next page and returns the accumulated list. Once every
// page was loaded it returns the current list without a request, unless
// force is set. Page 1 shows a query-cache hit right away unless force is set.
// Concurrent calls share one request.
func (l *ListView[P, T]) FetchNext(ctx context.Context, force bool) ([]T, error) {
	l.ensureLive()
	return l.fetchNext(ctx, force)
}

// FetchAll loads every remaining page of the query in one go.
func (l *ListView[P, T]) FetchAll(ctx context.Context) ([]T, error) {
	l.ensureLive()
	return l.fetchAll(ctx)
}

// Refresh clears the query cache, resets the list and fetches page 1. With
// clearExisting false the old items stay visible until page 1 replaces them.
func (l *ListView[P, T]) Refresh(ctx context.Context, clearExisting bool) ([]T, error) {
	l.ensureLive()
	return l.refresh(ctx, clearExisting, false)
}

// RefreshAll is Refresh followed by FetchAll instead of one page.
func (l *ListView[P, T]) RefreshAll(ctx context.Context, clearExisting bool) ([]T, error) {
	l.ensureLive()
	return l.refresh(ctx, clearExisting, true)
}

// LoadNewItem adds an entity created elsewhere to the top of the list without
// refetching. fetch typically wraps EntityGetter.Fetch. The entity is cached;
// it is listed only if absent and accepted by Match.
func (l *ListView[P, T]) LoadNewItem(ctx context.Context, fetch func(ctx context.Context) (T, error)) (T, error) {
	l.ensureLive()
	item, err := fetch(ctx)
	if err != nil {
		l.log.Error("load new item into list failed", Fields{"view": l.id, "err": err.Error()})
		return item, err
	}

	l.mu.Lock()
	cache, params, opts := l.cache, l.params, l.opts
	l.mu.Unlock()
	if cache == nil {
		return item, ErrNoParams
	}
	key := cache.Put(item)
	if !l.accepts(item, opts) {
		return item, nil
	}

	l.mu.Lock()
	added := !slices.Contains(l.keys, key)
	if added {
		l.keys = append([]string{key}, l.keys...)
	}
	l.remember(key, item)
	l.mu.Unlock()
	if added {
		cache.Queries().Prepend(l.getter.QueryKey(params, opts), key)
		l.publishItems()
	}
	return item, nil
}

// Dispose stops polling and background refetches and releases cache
// subscriptions. The shared cache is untouched. Idempotent.
func (l *ListView[P, T]) Dispose() {
	l.close(func() {
		l.items.Close()
		l.hasMore.Close()
	})
}

// reset drops the continuation and bumps the generation so responses in
// flight are ignored.
func (l *ListView[P, T]) reset(clearItems bool) {
	l.mu.Lock()
	l.gen.Add(1)
	l.token = nil
	l.more = true
	l.replace = true
	if clearItems {
		l.keys = nil
		l.fetched = nil
	}
	l.mu.Unlock()

	if clearItems {
		l.publishItems()
	}
	l.hasMore.Publish(true)
	l.setStatus(StatusLoading)
}

func (l *ListView[P, T]) watch(cache *Cache[T]) {
	l.cacheSubs.Unsubscribe()
	l.cacheSubs.Add(
		cache.Updated().Subscribe(func(keys []string) {
			if l.lists(cache, keys) {
				l.publishItems()
			}
		}),
		cache.Deleted().Subscribe(func(key string) {
			if !l.drop(cache, key) {
				return
			}
			l.publishItems()
			l.deleted.Publish(key)
		}),
		cache.Cleared().Subscribe(func(struct{}) {
			l.mu.Lock()
			same := l.cache == cache
			l.mu.Unlock()
			if !same {
				return
			}
			l.reset(true)
			l.background(func(ctx context.Context) { _, _ = l.fetchNext(ctx, true) })
		}),
	)
}

// lists reports whether cache is the current cache and lists any of keys.
func (l *ListView[P, T]) lists(cache *Cache[T], keys []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache != cache {
		return false
	}
	for _, k := range keys {
		if slices.Contains(l.keys, k) || slices.Contains(l.fixed, k) {
			return true
		}
	}
	return false
}

// drop removes key from the list. Reports whether the list showed it.
func (l *ListView[P, T]) drop(cache *Cache[T], key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache != cache {
		return false
	}
	i := slices.Index(l.keys, key)
	if i >= 0 {
		l.keys = slices.Delete(l.keys, i, i+1)
		delete(l.fetched, key)
	}
	return i >= 0 || slices.Contains(l.fixed, key)
}

func (l *ListView[P, T]) accepts(item T, opts ListOptions) bool {
	return l.match == nil || opts.Filter == "" || l.match(item, opts)
}

// publishItems resolves fixed keys then accumulated keys through the cache.
// Accumulated keys the store no longer holds show their last fetched value.
func (l *ListView[P, T]) publishItems() {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	cache, opts := l.cache, l.opts
	fixed := slices.Clone(l.fixed)
	keys := slices.Clone(l.keys)
	fetched := maps.Clone(l.fetched)
	l.mu.Unlock()

	out := []T{}
	if cache != nil {
		for _, item := range cache.lookup(fixed) {
			if !slices.Contains(keys, cache.KeyOf(item)) && l.accepts(item, opts) {
				out = append(out, item)
			}
		}
		out = append(out, cache.lookupOr(keys, fetched)...)
	}
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	l.items.Publish(out)
}

func (l *ListView[P, T]) fetchNext(ctx context.Context, force bool) ([]T, error) {
	l.mu.Lock()
	if !l.hasParams {
		l.mu.Unlock()
		return nil, ErrNoParams
	}
	if !l.more && !force {
		l.mu.Unlock()
		items, _ := l.items.Value()
		return items, nil
	}
	gen := l.gen.Load()
	l.mu.Unlock()

	// one request per generation at a time
	ch := l.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return l.loadPage(gen, force)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]T), nil
	}
}

// loadPage fetches the page after the current token, or page 1 when there is
// none. It runs on the view context so one caller giving up does not fail the
// others sharing the request.
func (l *ListView[P, T]) loadPage(gen uint64, force bool) ([]T, error) {
	l.mu.Lock()
	params, opts, token, cache := l.params, l.opts, l.token, l.cache
	l.mu.Unlock()

	l.setStatus(StatusLoading)
	var (
		resp ListResponse[P, T]
		err  error
	)
	if token.Done() {
		if !force {
			l.showCached(gen, params, opts)
		}
		resp, err = l.getter.Fetch(l.ctx, params, opts, true)
	} else {
		resp, err = l.getter.FetchNext(l.ctx, token)
	}

	l.mu.Lock()
	if !l.current(gen) {
		l.mu.Unlock()
		return nil, ErrSuperseded
	}
	if err != nil {
		l.more = false
		l.mu.Unlock()
		if l.ctx.Err() != nil {
			return nil, err
		}
		l.hasMore.Publish(false)
		l.fail(err)
		return nil, err
	}
	l.addKeys(cache, resp.Items)
	l.token, l.more = resp.Next, resp.HasMore
	l.mu.Unlock()

	l.publishItems()
	l.hasMore.Publish(resp.HasMore)
	if resp.HasMore {
		l.setStatus(StatusPartiallyLoaded)
	} else {
		l.setStatus(StatusReady)
	}
	items, _ := l.items.Value()
	return items, nil
}

// showCached shows the query-cache entry of page 1 while the fresh page loads.
func (l *ListView[P, T]) showCached(gen uint64, params P, opts ListOptions) {
	resp, ok := l.getter.FetchFromCache(params, opts)
	if !ok {
		return
	}
	l.mu.Lock()
	if l.gen.Load() != gen {
		l.mu.Unlock()
		return
	}
	l.keys, l.fetched = nil, nil
	l.addKeys(l.cache, resp.Items)
	l.replace = true
	l.mu.Unlock()
	l.publishItems()
}

// addKeys merges the keys of items into the list. Caller holds l.mu.
func (l *ListView[P, T]) addKeys(cache *Cache[T], items []T) {
	if l.replace {
		l.keys, l.fetched = nil, nil
		l.replace = false
	}
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = cache.KeyOf(item)
		l.remember(keys[i], item)
	}
	l.keys = appendUnique(l.keys, keys)
}

// remember keeps item as the fallback value of key. Caller holds l.mu.
func (l *ListView[P, T]) remember(key string, item T) {
	if l.fetched == nil {
		l.fetched = make(map[string]T)
	}
	l.fetched[key] = item
}

func (l *ListView[P, T]) fetchAll(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	if !l.hasParams {
		l.mu.Unlock()
		return nil, ErrNoParams
	}
	params, opts, cache := l.params, l.opts, l.cache
	gen := l.gen.Load()
	l.mu.Unlock()

	l.setStatus(StatusLoading)
	all, err := l.getter.FetchAll(ctx, params, opts, nil)

	l.mu.Lock()
	if !l.current(gen) {
		l.mu.Unlock()
		return nil, ErrSuperseded
	}
	l.more = false
	if err != nil {
		l.mu.Unlock()
		l.hasMore.Publish(false)
		if ctx.Err() == nil {
			l.fail(err)
		}
		return nil, err
	}
	l.addKeys(cache, all)
	l.token = nil
	l.mu.Unlock()

	l.publishItems()
	l.hasMore.Publish(false)
	l.setStatus(StatusReady)
	items, _ := l.items.Value()
	return items, nil
}

func (l *ListView[P, T]) refresh(ctx context.Context, clearExisting, all bool) ([]T, error) {
	l.mu.Lock()
	cache := l.cache
	l.mu.Unlock()
	if cache == nil {
		return nil, ErrNoParams
	}
	cache.Queries().Clear()
	l.reset(clearExisting)
	if all {
		return l.fetchAll(ctx)
	}
	return l.fetchNext(ctx, false)
}

func (l *ListView[P, T]) pollTick(ctx context.Context) {
	_, _ = l.refresh(ctx, false, l.pollAll)
}
