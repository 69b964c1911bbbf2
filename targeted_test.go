package viewcache

import (
	"testing"
)

// Node ids are only unique per pool: the same key in two pools must live in
// two caches.
func TestTargetedCache_TargetsAreIsolated(t *testing.T) {
	tc := newNodeCaches(t, nil)

	a, err := tc.GetCache(nodeParams{Pool: "a"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := tc.GetCache(nodeParams{Pool: "b"})
	if a == b {
		t.Fatal("targets share a cache")
	}
	again, _ := tc.GetCache(nodeParams{Pool: "a", ID: "x"})
	if again != a {
		t.Fatal("same target returned a new cache")
	}

	a.Put(node{ID: "n1", State: "idle"})
	b.Put(node{ID: "n1", State: "running"})
	na, _ := a.Get("n1")
	nb, _ := b.Get("n1")
	if na.State != "idle" || nb.State != "running" {
		t.Fatalf("a=%+v b=%+v", na, nb)
	}

	bDeleted := collect(b.Deleted())
	a.Remove("n1")
	if len(bDeleted.values()) != 0 {
		t.Fatal("remove in a notified b")
	}

	if a.Namespace() != "nodes:a" || b.Namespace() != "nodes:b" {
		t.Fatalf("namespaces %q %q", a.Namespace(), b.Namespace())
	}
	if tc.Target(nodeParams{Pool: "b"}) != "b" {
		t.Fatal("Target mismatch")
	}
}

func TestTargetedCache_CachesClearDispose(t *testing.T) {
	tr := NewTracker()
	tc := newNodeCaches(t, tr)
	for _, p := range []string{"b", "a"} {
		c, _ := tc.GetCache(nodeParams{Pool: p})
		c.Put(node{ID: "n1"})
	}

	cs := tc.Caches()
	if len(cs) != 2 || cs[0].Namespace() != "nodes:a" {
		t.Fatalf("Caches not ordered by target: %d", len(cs))
	}

	tc.Clear()
	for _, c := range cs {
		if c.Len() != 0 {
			t.Fatalf("%s not cleared", c.Namespace())
		}
	}
	if tr.LiveByKind(KindCache) != 2 {
		t.Fatal("Clear must keep caches registered")
	}

	tc.Dispose()
	tc.Dispose()
	if tr.Live() != 0 {
		t.Fatalf("live = %d after Dispose", tr.Live())
	}
	defer func() {
		if r := recover(); r != ErrDisposed {
			t.Fatalf("recover = %v, want ErrDisposed", r)
		}
	}()
	_, _ = tc.GetCache(nodeParams{Pool: "c"})
}

func TestNewTargetedCache_Validates(t *testing.T) {
	if _, err := NewTargetedCache[nodeParams](nil, CacheOptions[node]{Key: nodeKey}); err == nil {
		t.Fatal("nil target accepted")
	}
	if _, err := NewTargetedCache(poolOf, CacheOptions[node]{}); err == nil {
		t.Fatal("nil key accepted")
	}
}

func TestSingle_MapsEveryParamsToOneCache(t *testing.T) {
	c := newNodeCache(t, CacheOptions[node]{Namespace: "all"})
	r := Single[nodeParams](c)
	a, _ := r.GetCache(nodeParams{Pool: "a"})
	b, _ := r.GetCache(nodeParams{Pool: "b"})
	if a != c || b != c {
		t.Fatal("Single returned another cache")
	}
	if r.Target(nodeParams{Pool: "a"}) != "all" {
		t.Fatalf("Target = %q", r.Target(nodeParams{Pool: "a"}))
	}
}
