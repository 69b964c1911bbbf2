package viewcache

import (
	"slices"
	"sort"
	"testing"
)

func newNodeCache(t *testing.T, opts CacheOptions[node]) *Cache[node] {
	t.Helper()
	if opts.Key == nil {
		opts.Key = nodeKey
	}
	c, err := NewCache(opts)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(c.Dispose)
	return c
}

func TestNewCache_RequiresKey(t *testing.T) {
	if _, err := NewCache(CacheOptions[node]{}); err == nil {
		t.Fatal("NewCache without Key succeeded")
	}
}

func TestCache_PutGetLastWriteWins(t *testing.T) {
	c := newNodeCache(t, CacheOptions[node]{})
	upd := collect(c.Updated())

	if k := c.Put(node{ID: "N1", State: "idle"}); k != "n1" {
		t.Fatalf("Put key = %q", k)
	}
	c.Put(node{ID: "n1", State: "running"})

	got, ok := c.Get("n1")
	if !ok || got.State != "running" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if !c.Has("n1") || c.Has("n2") {
		t.Fatal("Has disagrees with Get")
	}
	if n := len(upd.values()); n != 2 {
		t.Fatalf("Updated fired %d times, want 2", n)
	}
	if c.Namespace() != defaultNamespace {
		t.Fatalf("namespace = %q", c.Namespace())
	}
}

func TestCache_PutAllOneNotificationInInputOrder(t *testing.T) {
	c := newNodeCache(t, CacheOptions[node]{})
	upd := collect(c.Updated())

	keys := c.PutAll(nodes("b", "A", "c"), nil)
	if !slices.Equal(keys, []string{"b", "a", "c"}) {
		t.Fatalf("keys = %v", keys)
	}
	got := upd.values()
	if len(got) != 1 || !slices.Equal(got[0], keys) {
		t.Fatalf("Updated = %v", got)
	}
	if empty := c.PutAll(nil, nil); empty == nil || len(empty) != 0 {
		t.Fatalf("PutAll(nil) = %#v", empty)
	}
	if len(upd.values()) != 1 {
		t.Fatal("empty PutAll notified")
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestCache_PutAllMergesSelectedFields(t *testing.T) {
	merge := func(old, fresh node, fields []string) node {
		for _, f := range fields {
			if f == "state" {
				old.State = fresh.State
			}
		}
		return old
	}
	c := newNodeCache(t, CacheOptions[node]{Merge: merge})
	c.Put(node{ID: "n1", State: "idle", Tasks: 7})

	c.PutAll([]node{{ID: "n1", State: "running"}, {ID: "n2", State: "idle", Tasks: 1}}, []string{"state"})

	n1, _ := c.Get("n1")
	if n1.State != "running" || n1.Tasks != 7 {
		t.Fatalf("merged n1 = %+v, want state updated and tasks kept", n1)
	}
	n2, _ := c.Get("n2")
	if n2.Tasks != 1 {
		t.Fatalf("new entity stored as fetched, got %+v", n2)
	}

	// no merge func: select-shaped puts overwrite
	plain := newNodeCache(t, CacheOptions[node]{})
	plain.Put(node{ID: "n1", Tasks: 7})
	plain.PutAll([]node{{ID: "n1", State: "running"}}, []string{"state"})
	if n, _ := plain.Get("n1"); n.Tasks != 0 {
		t.Fatalf("overwrite expected, got %+v", n)
	}
}

func TestCache_RemoveNotifiesOnlyWhenPresent(t *testing.T) {
	c := newNodeCache(t, CacheOptions[node]{})
	del := collect(c.Deleted())
	c.PutAll(nodes("n1", "n2"), nil)
	c.Queries().Set("q", []string{"n1", "n2"}, "")

	if !c.Remove("n1") {
		t.Fatal("Remove(n1) = false")
	}
	if c.Remove("n1") || c.Remove("zz") {
		t.Fatal("Remove of absent key reported true")
	}
	if got := del.values(); !slices.Equal(got, []string{"n1"}) {
		t.Fatalf("Deleted = %v", got)
	}
	cq, _ := c.Queries().Get("q")
	if !slices.Equal(cq.Keys, []string{"n2"}) {
		t.Fatalf("query keys = %v, removed key must be dropped", cq.Keys)
	}
}

func TestCache_ClearEmptiesStoreAndQueries(t *testing.T) {
	c := newNodeCache(t, CacheOptions[node]{})
	cleared := collect(c.Cleared())
	c.PutAll(nodes("n1", "n2"), nil)
	c.Queries().Set("q", []string{"n1"}, "")

	c.Clear()

	if c.Len() != 0 || c.Queries().Len() != 0 {
		t.Fatalf("Len=%d queries=%d after Clear", c.Len(), c.Queries().Len())
	}
	if len(cleared.values()) != 1 {
		t.Fatal("Cleared did not fire")
	}
}

func TestCache_ItemsSnapshot(t *testing.T) {
	c := newNodeCache(t, CacheOptions[node]{})
	c.PutAll(nodes("b", "a"), nil)
	got := ids(c.Items())
	sort.Strings(got)
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Items = %v", got)
	}
}

func TestCache_DisposeLeavesTrackerAndCompletesStreams(t *testing.T) {
	tr := NewTracker()
	c, err := NewCache(CacheOptions[node]{Key: nodeKey, Tracker: tr})
	if err != nil {
		t.Fatal(err)
	}
	collect(c.Updated())
	if tr.LiveByKind(KindCache) != 1 {
		t.Fatalf("live caches = %d", tr.LiveByKind(KindCache))
	}

	c.Dispose()
	c.Dispose()

	if tr.Live() != 0 {
		t.Fatalf("live = %d after Dispose", tr.Live())
	}
	if c.Updated().Len() != 0 {
		t.Fatal("Updated keeps subscribers after Dispose")
	}
}

func TestCache_StoreFactoryError(t *testing.T) {
	failing := func(string) (Store[node], error) { return nil, errBoom }
	if _, err := NewCache(CacheOptions[node]{Key: nodeKey, Store: failing}); err == nil {
		t.Fatal("store error not reported")
	}
}
