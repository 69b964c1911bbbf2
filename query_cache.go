package viewcache

import (
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedQuery is the ordered key list a list query produced, with the link to
// the page after the last one loaded ("" when every page was loaded).
type CachedQuery struct {
	Keys      []string
	NextLink  string
	CreatedAt time.Time
}

// QueryCache remembers recent list queries of one Cache so a list can show
// what it loaded last time before the network answers. Entries expire after
// the configured TTL; at most max entries are kept, oldest dropped first.
type QueryCache struct {
	mu  sync.Mutex // guards read-modify-write of entries
	c   *gocache.Cache
	max int
}

func newQueryCache(ttl time.Duration, max int) *QueryCache {
	return &QueryCache{
		c:   gocache.New(ttl, ttl),
		max: max,
	}
}

// Get returns a copy of the entry for query.
func (q *QueryCache) Get(query string) (CachedQuery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cq, ok := q.get(query)
	if !ok {
		return CachedQuery{}, false
	}
	cq.Keys = slices.Clone(cq.Keys)
	return cq, true
}

// Set replaces the entry for query.
func (q *QueryCache) Set(query string, keys []string, nextLink string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.put(query, CachedQuery{
		Keys:      slices.Clone(keys),
		NextLink:  nextLink,
		CreatedAt: time.Now(),
	})
}

// Append extends an existing entry with the keys of a following page.
// Keys already listed keep their position. No-op when query is not cached.
func (q *QueryCache) Append(query string, keys []string, nextLink string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cq, ok := q.get(query)
	if !ok {
		return
	}
	cq.Keys = appendUnique(slices.Clone(cq.Keys), keys)
	cq.NextLink = nextLink
	q.put(query, cq)
}

// Prepend puts key in front of an existing entry unless already listed.
func (q *QueryCache) Prepend(query, key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cq, ok := q.get(query)
	if !ok || slices.Contains(cq.Keys, key) {
		return
	}
	cq.Keys = append([]string{key}, cq.Keys...)
	q.put(query, cq)
}

// DeleteKey removes key from every entry.
func (q *QueryCache) DeleteKey(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for query, item := range q.c.Items() {
		cq := item.Object.(CachedQuery)
		if i := slices.Index(cq.Keys, key); i >= 0 {
			cq.Keys = slices.Delete(slices.Clone(cq.Keys), i, i+1)
			q.c.Set(query, cq, time.Until(time.Unix(0, item.Expiration)))
		}
	}
}

// Clear drops every entry.
func (q *QueryCache) Clear() { q.c.Flush() }

// Len counts live entries (expired ones awaiting cleanup included).
func (q *QueryCache) Len() int { return q.c.ItemCount() }

func (q *QueryCache) get(query string) (CachedQuery, bool) {
	v, ok := q.c.Get(query)
	if !ok {
		return CachedQuery{}, false
	}
	return v.(CachedQuery), true
}

func (q *QueryCache) put(query string, cq CachedQuery) {
	q.c.SetDefault(query, cq)
	if q.max <= 0 {
		return
	}
	items := q.c.Items()
	for len(items) > q.max {
		oldest, oldestAt := "", int64(0)
		for k, it := range items {
			if k == query {
				continue
			}
			if oldest == "" || it.Expiration < oldestAt {
				oldest, oldestAt = k, it.Expiration
			}
		}
		if oldest == "" {
			return
		}
		q.c.Delete(oldest)
		delete(items, oldest)
	}
}

// appendUnique appends the keys of next that dst does not list yet.
func appendUnique(dst, next []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(next))
	for _, k := range dst {
		seen[k] = struct{}{}
	}
	for _, k := range next {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, k)
	}
	return dst
}
