package viewcache

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type node struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Tasks int    `json:"tasks"`
}

func nodeKey(n node) string { return strings.ToLower(n.ID) }

// nodeParams address a pool, and a node in it for entity fetches.
type nodeParams struct {
	Pool string
	ID   string
}

func poolOf(p nodeParams) string { return p.Pool }

func newNodeCaches(t *testing.T, tr *Tracker) *TargetedCache[nodeParams, node] {
	t.Helper()
	tc, err := NewTargetedCache(poolOf, CacheOptions[node]{Key: nodeKey, Namespace: "nodes", Tracker: tr})
	if err != nil {
		t.Fatalf("NewTargetedCache: %v", err)
	}
	t.Cleanup(tc.Dispose)
	return tc
}

var errBoom = errors.New("boom")

func notFound() error {
	return &ServerError{Status: http.StatusNotFound, Code: "NodeNotFound", Message: "node not found"}
}

// fakeService serves pools of nodes page by page. Next links look like
// "<pool>|<offset>".
type fakeService struct {
	mu       sync.Mutex
	pools    map[string][]node
	pageSize int
	fail     map[string]error // "get:<pool>/<id>", "list:<pool>", "next:<link>"
	gate     chan struct{}    // non-nil: calls block until it yields or closes

	gets  atomic.Int32
	lists atomic.Int32
	nexts atomic.Int32
	opts  []ListOptions
}

func newFakeService(pageSize int) *fakeService {
	return &fakeService{pools: make(map[string][]node), pageSize: pageSize, fail: make(map[string]error)}
}

func (s *fakeService) setPool(pool string, nodes ...node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool] = slices.Clone(nodes)
}

func (s *fakeService) setFail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, key)
		return
	}
	s.fail[key] = err
}

// hold makes every call block until release is called.
func (s *fakeService) hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *fakeService) wait(ctx context.Context) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-ctx.Done():
	}
}

func (s *fakeService) get(ctx context.Context, p nodeParams) (node, error) {
	s.gets.Add(1)
	s.wait(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["get:"+p.Pool+"/"+p.ID]; err != nil {
		return node{}, err
	}
	for _, n := range s.pools[p.Pool] {
		if nodeKey(n) == strings.ToLower(p.ID) {
			return n, nil
		}
	}
	return node{}, notFound()
}

func (s *fakeService) list(ctx context.Context, p nodeParams, o ListOptions) (Page[node], error) {
	s.lists.Add(1)
	s.wait(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = append(s.opts, o)
	if err := s.fail["list:"+p.Pool]; err != nil {
		return Page[node]{}, err
	}
	return s.page(p.Pool, 0, o.Filter), nil
}

func (s *fakeService) next(ctx context.Context, link string) (Page[node], error) {
	s.nexts.Add(1)
	s.wait(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["next:"+link]; err != nil {
		return Page[node]{}, err
	}
	pool, rest, _ := strings.Cut(link, "|")
	off, filter, _ := strings.Cut(rest, "|")
	n, err := strconv.Atoi(off)
	if err != nil {
		return Page[node]{}, ErrMalformed
	}
	return s.page(pool, n, filter), nil
}

// page filters on "state=<state>" when filter is set. Caller holds s.mu.
func (s *fakeService) page(pool string, off int, filter string) Page[node] {
	var all []node
	for _, n := range s.pools[pool] {
		if state, ok := strings.CutPrefix(filter, "state="); ok && n.State != state {
			continue
		}
		all = append(all, n)
	}
	if off > len(all) {
		off = len(all)
	}
	end := len(all)
	if s.pageSize > 0 {
		end = min(off+s.pageSize, len(all))
	}
	page := Page[node]{Items: slices.Clone(all[off:end])}
	if page.Items == nil {
		page.Items = []node{}
	}
	if end < len(all) {
		page.NextLink = pool + "|" + strconv.Itoa(end) + "|" + filter
	}
	return page
}

func (s *fakeService) entityGetter(t *testing.T, caches CacheResolver[nodeParams, node], hooks Hooks) *EntityGetter[nodeParams, node] {
	t.Helper()
	g, err := NewEntityGetter(EntityGetterOptions[nodeParams, node]{
		Caches: caches,
		Fetch:  s.get,
		Key:    func(p nodeParams) string { return strings.ToLower(p.ID) },
		Hooks:  hooks,
	})
	if err != nil {
		t.Fatalf("NewEntityGetter: %v", err)
	}
	return g
}

func (s *fakeService) listGetter(t *testing.T, caches CacheResolver[nodeParams, node], hooks Hooks) *ListGetter[nodeParams, node] {
	t.Helper()
	g, err := NewListGetter(ListGetterOptions[nodeParams, node]{
		Caches:   caches,
		List:     s.list,
		ListNext: s.next,
		Hooks:    hooks,
	})
	if err != nil {
		t.Fatalf("NewListGetter: %v", err)
	}
	return g
}

func nodes(ids ...string) []node {
	out := make([]node, len(ids))
	for i, id := range ids {
		out[i] = node{ID: id, State: "idle"}
	}
	return out
}

func ids(items []node) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

// recHooks records hook events as "<event>:<detail>".
type recHooks struct {
	mu     sync.Mutex
	events []string
}

var _ Hooks = (*recHooks)(nil)

func (h *recHooks) add(e string) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recHooks) count(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func (h *recHooks) FetchShared(kind, _ string)          { h.add("shared:" + kind) }
func (h *recHooks) FetchFailed(kind, _ string, _ error) { h.add("failed:" + kind) }
func (h *recHooks) StaleDropped(string, uint64, uint64) { h.add("stale") }
func (h *recHooks) SelfHeal(_, reason string)           { h.add("heal:" + reason) }
func (h *recHooks) ProviderSetRejected(k string)        { h.add("rejected:" + k) }
func (h *recHooks) EpochError(ns string, _ error)       { h.add("epoch:" + ns) }

// collect subscribes to s and records every value.
type collector[V any] struct {
	mu   sync.Mutex
	vals []V
	sub  *Subscription
}

func collect[V any](s *Stream[V]) *collector[V] {
	c := &collector[V]{}
	c.sub = s.Subscribe(func(v V) {
		c.mu.Lock()
		c.vals = append(c.vals, v)
		c.mu.Unlock()
	})
	return c
}

func (c *collector[V]) values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.vals)
}

func (c *collector[V]) last() (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.vals) == 0 {
		var zero V
		return zero, false
	}
	return c.vals[len(c.vals)-1], true
}

// eventually polls cond for up to a second.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("view background work did not stop")
	}
}
