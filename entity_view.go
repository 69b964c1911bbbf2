package viewcache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// EntityViewOptions configure an EntityView. Getter is required.
type EntityViewOptions[P, T any] struct {
	Getter *EntityGetter[P, T]

	PollInterval time.Duration   // 0 => no polling
	Clock        clockwork.Clock // nil => real clock
	// OnError may return false to ignore an error: the view goes Ready and
	// the error stream stays quiet.
	OnError func(*ServerError) bool

	Tracker *Tracker
	Logger  Logger
	Hooks   Hooks
}

// EntityView follows one entity for a screen. The item stream emits the
// cached value when the view switches to a new entity, then every fetched or
// cache-updated value. Dispose it when the screen goes away.
type EntityView[P, T any] struct {
	*view
	getter *EntityGetter[P, T]

	mu        sync.Mutex
	params    P
	hasParams bool
	cache     *Cache[T]
	key       string
	fetched   T // last value fetched for key, shown when the store did not keep it
	hasFetch  bool

	item *Stream[T]
}

func NewEntityView[P, T any](opts EntityViewOptions[P, T]) (*EntityView[P, T], error) {
	if opts.Getter == nil {
		return nil, fmt.Errorf("viewcache: entity view needs a Getter")
	}
	e := &EntityView[P, T]{
		view: newView(viewConfig{
			kind:     KindEntityView,
			interval: opts.PollInterval,
			clock:    opts.Clock,
			onError:  opts.OnError,
			tracker:  opts.Tracker,
			logger:   opts.Logger,
			hooks:    opts.Hooks,
		}),
		getter: opts.Getter,
		item:   NewReplayStream[T](),
	}
	e.tracker.register(e.id, KindEntityView, e.Dispose, nil)
	return e, nil
}

// Item emits the viewed entity. It replays the latest value on Subscribe.
func (e *EntityView[P, T]) Item() *Stream[T] { return e.item }

// Value returns the cached entity of the current params, or the last fetched
// one when the cache does not hold it.
func (e *EntityView[P, T]) Value() (T, bool) {
	e.ensureLive()
	e.mu.Lock()
	cache, key := e.cache, e.key
	fetched, hasFetch := e.fetched, e.hasFetch
	e.mu.Unlock()
	if cache == nil {
		var zero T
		return zero, false
	}
	if v, ok := cache.Get(key); ok {
		return v, true
	}
	return fetched, hasFetch
}

// Params returns the current params.
func (e *EntityView[P, T]) Params() (P, bool) {
	e.ensureLive()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params, e.hasParams
}

// SetParams switches the view to the entity params identify and fetches it.
// Responses still in flight for earlier params are dropped. The first call
// starts the poll loop.
func (e *EntityView[P, T]) SetParams(ctx context.Context, params P) error {
	e.ensureLive()
	cache, err := e.getter.Cache(params)
	if err != nil {
		return err
	}
	key := e.getter.KeyOf(params)

	e.mu.Lock()
	gen := e.gen.Add(1)
	e.params, e.hasParams = params, true
	e.cache, e.key = cache, key
	var zero T
	e.fetched, e.hasFetch = zero, false
	e.mu.Unlock()

	e.watch(cache, gen, key)
	e.markNewData()
	if v, ok := cache.Get(key); ok {
		e.item.Publish(v)
	}
	e.startPoll(e.pollTick)

	_, err = e.fetch(ctx, gen)
	return err
}

// Fetch loads the entity of the current params from the server.
func (e *EntityView[P, T]) Fetch(ctx context.Context) (T, error) {
	e.ensureLive()
	return e.fetch(ctx, e.gen.Load())
}

// Refresh is Fetch, for pull-to-refresh call sites.
func (e *EntityView[P, T]) Refresh(ctx context.Context) (T, error) {
	e.ensureLive()
	return e.fetch(ctx, e.gen.Load())
}

// Dispose stops polling and releases cache subscriptions. Idempotent.
func (e *EntityView[P, T]) Dispose() {
	e.close(e.item.Close)
}

// watch follows key in cache for generation gen.
func (e *EntityView[P, T]) watch(cache *Cache[T], gen uint64, key string) {
	e.cacheSubs.Unsubscribe()
	e.cacheSubs.Add(
		cache.Updated().Subscribe(func(keys []string) {
			if e.gen.Load() != gen || !slices.Contains(keys, key) {
				return
			}
			if v, ok := cache.Get(key); ok {
				e.item.Publish(v)
			}
		}),
		cache.Deleted().Subscribe(func(k string) {
			if e.gen.Load() == gen && k == key {
				e.deleted.Publish(k)
			}
		}),
	)
}

func (e *EntityView[P, T]) fetch(ctx context.Context, gen uint64) (T, error) {
	var zero T
	e.mu.Lock()
	params, ok := e.params, e.hasParams
	cache, key := e.cache, e.key
	e.mu.Unlock()
	if !ok {
		return zero, ErrNoParams
	}

	e.setStatus(StatusLoading)
	item, err := e.getter.Fetch(ctx, params)
	if !e.current(gen) {
		return zero, ErrSuperseded
	}
	if err != nil {
		if ctx.Err() == nil {
			e.fail(err)
		}
		return zero, err
	}
	e.mu.Lock()
	if e.gen.Load() == gen {
		e.fetched, e.hasFetch = item, true
	}
	e.mu.Unlock()
	// a stored item was already published by the cache watch
	if _, cached := cache.Get(key); !cached && e.gen.Load() == gen {
		e.item.Publish(item)
	}
	e.setStatus(StatusReady)
	return item, nil
}

func (e *EntityView[P, T]) pollTick(ctx context.Context) {
	_, _ = e.fetch(ctx, e.gen.Load())
}
