package viewcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultNamespace  = "default"
	defaultQueryTTL   = time.Minute
	defaultMaxQueries = 10
)

// KeyFunc extracts the identity of an entity, e.g. its lower-cased id.
type KeyFunc[T any] func(T) string

// MergeFunc applies the fields listed in a select projection of fresh onto old.
type MergeFunc[T any] func(old, fresh T, fields []string) T

// CacheOptions tune a Cache. Only Key is required; others have sensible defaults.
type CacheOptions[T any] struct {
	// Required
	Key KeyFunc[T]

	Namespace  string          // 0 => "default"; targeted sub-caches use "<ns>:<target>"
	Merge      MergeFunc[T]    // nil => select-shaped puts overwrite like plain puts
	Store      StoreFactory[T] // nil => in-memory map
	QueryTTL   time.Duration   // query cache entry lifetime; 0 => 1m
	MaxQueries int             // query cache entries kept; 0 => 10
	Logger     Logger          // if nil, NopLogger is used
	Tracker    *Tracker        // nil => untracked
}

// Cache is a key → entity store shared by every getter and view of one target.
// Writes are last-write-wins. Updated, Deleted and Cleared report changes.
type Cache[T any] struct {
	id      string
	ns      string
	key     KeyFunc[T]
	merge   MergeFunc[T]
	log     Logger
	tracker *Tracker

	mu    sync.RWMutex
	store Store[T]

	queries *QueryCache

	updated *Stream[[]string]
	deleted *Stream[string]
	cleared *Stream[struct{}]

	disposeOnce sync.Once
}

func NewCache[T any](opts CacheOptions[T]) (*Cache[T], error) {
	if opts.Key == nil {
		return nil, fmt.Errorf("viewcache: key func is required")
	}

	c := &Cache[T]{
		id:      uuid.NewString(),
		key:     opts.Key,
		merge:   opts.Merge,
		tracker: opts.Tracker,
		updated: NewStream[[]string](),
		deleted: NewStream[string](),
		cleared: NewStream[struct{}](),
	}
	c.ns = coalesce(opts.Namespace, defaultNamespace)
	c.log = coalesce[Logger](opts.Logger, NopLogger{})

	newStore := opts.Store
	if newStore == nil {
		newStore = newMemStore[T]
	}
	store, err := newStore(c.ns)
	if err != nil {
		return nil, fmt.Errorf("viewcache: store for %q: %w", c.ns, err)
	}
	c.store = store
	c.queries = newQueryCache(
		coalesce(opts.QueryTTL, defaultQueryTTL),
		coalesce(opts.MaxQueries, defaultMaxQueries),
	)

	c.tracker.register(c.id, KindCache, c.Dispose, c.Clear)
	return c, nil
}

func (c *Cache[T]) ID() string        { return c.id }
func (c *Cache[T]) Namespace() string { return c.ns }

// KeyOf returns the cache key of item.
func (c *Cache[T]) KeyOf(item T) string { return c.key(item) }

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Get(key)
}

func (c *Cache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Put stores item at KeyOf(item), replacing any previous value, and returns the key.
func (c *Cache[T]) Put(item T) string {
	key := c.key(item)
	c.mu.Lock()
	c.store.Set(key, item)
	c.mu.Unlock()
	c.updated.Publish([]string{key})
	return key
}

// PutAll stores items and returns their keys in input order. When fields is
// non-empty and a MergeFunc is configured, existing entries only receive the
// selected fields. One Updated notification covers the whole batch.
func (c *Cache[T]) PutAll(items []T, fields []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	keys := make([]string, len(items))
	c.mu.Lock()
	for i, item := range items {
		key := c.key(item)
		keys[i] = key
		if len(fields) > 0 && c.merge != nil {
			if old, ok := c.store.Get(key); ok {
				item = c.merge(old, item, fields)
			}
		}
		c.store.Set(key, item)
	}
	c.mu.Unlock()
	c.updated.Publish(keys)
	return keys
}

// Remove deletes key and drops it from every cached query.
// Returns false when the key was not present; Deleted only fires on true.
func (c *Cache[T]) Remove(key string) bool {
	c.queries.DeleteKey(key)

	c.mu.Lock()
	_, ok := c.store.Get(key)
	if ok {
		c.store.Del(key)
	}
	c.mu.Unlock()

	if ok {
		c.log.Debug("cache entry removed", Fields{"ns": c.ns, "key": key})
		c.deleted.Publish(key)
	}
	return ok
}

// Clear empties the cache and its query cache, then notifies Cleared.
func (c *Cache[T]) Clear() {
	c.queries.Clear()
	c.mu.Lock()
	c.store.Clear()
	c.mu.Unlock()
	c.log.Debug("cache cleared", Fields{"ns": c.ns})
	c.cleared.Publish(struct{}{})
}

// Items returns a snapshot of every cached entity in no particular order.
func (c *Cache[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := c.store.Keys()
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if v, ok := c.store.Get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Len counts the entities Items would return.
func (c *Cache[T]) Len() int { return len(c.Items()) }

// lookup resolves keys in order, skipping the ones no longer cached.
func (c *Cache[T]) lookup(keys []string) []T {
	return c.lookupOr(keys, nil)
}

// lookupOr resolves keys in order. A key the store does not hold, because the
// provider rejected or evicted it, takes its value from fallback; keys missing
// from both are skipped.
func (c *Cache[T]) lookupOr(keys []string, fallback map[string]T) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if v, ok := c.store.Get(k); ok {
			out = append(out, v)
		} else if v, ok := fallback[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (c *Cache[T]) Queries() *QueryCache { return c.queries }

// Updated emits the keys written by each Put/PutAll.
func (c *Cache[T]) Updated() *Stream[[]string] { return c.updated }

// Deleted emits the key of each removed entry.
func (c *Cache[T]) Deleted() *Stream[string] { return c.deleted }

// Cleared fires after Clear.
func (c *Cache[T]) Cleared() *Stream[struct{}] { return c.cleared }

// Dispose completes the streams and leaves the tracker. The store is left
// as is: a provider store may be shared with other processes, and Clear is
// the way to invalidate it. Views still reading from the cache see no further
// notifications. Idempotent.
func (c *Cache[T]) Dispose() {
	c.disposeOnce.Do(func() {
		c.queries.Clear()
		c.updated.Close()
		c.deleted.Close()
		c.cleared.Close()
		c.tracker.unregister(c.id)
	})
}
