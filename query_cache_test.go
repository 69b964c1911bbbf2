package viewcache

import (
	"slices"
	"testing"
	"time"
)

func TestQueryCache_GetReturnsCopy(t *testing.T) {
	q := newQueryCache(time.Minute, 10)
	keys := []string{"a", "b"}
	q.Set("q", keys, "next")
	keys[0] = "zz"

	cq, ok := q.Get("q")
	if !ok || !slices.Equal(cq.Keys, []string{"a", "b"}) || cq.NextLink != "next" {
		t.Fatalf("Get = %+v, %v", cq, ok)
	}
	cq.Keys[0] = "mutated"
	again, _ := q.Get("q")
	if again.Keys[0] != "a" {
		t.Fatal("Get exposed internal slice")
	}
	if cq.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
}

func TestQueryCache_AppendAndPrepend(t *testing.T) {
	q := newQueryCache(time.Minute, 10)

	q.Append("missing", []string{"a"}, "")
	if _, ok := q.Get("missing"); ok {
		t.Fatal("Append created an entry")
	}

	q.Set("q", []string{"a", "b"}, "p2")
	q.Append("q", []string{"b", "c"}, "")
	cq, _ := q.Get("q")
	if !slices.Equal(cq.Keys, []string{"a", "b", "c"}) || cq.NextLink != "" {
		t.Fatalf("after Append = %+v", cq)
	}

	q.Prepend("q", "z")
	q.Prepend("q", "b") // already listed
	q.Prepend("missing", "z")
	cq, _ = q.Get("q")
	if !slices.Equal(cq.Keys, []string{"z", "a", "b", "c"}) {
		t.Fatalf("after Prepend = %v", cq.Keys)
	}
}

func TestQueryCache_DeleteKeyFromEveryEntry(t *testing.T) {
	q := newQueryCache(time.Minute, 10)
	q.Set("q1", []string{"a", "b"}, "")
	q.Set("q2", []string{"b", "c"}, "")

	q.DeleteKey("b")

	q1, _ := q.Get("q1")
	q2, _ := q.Get("q2")
	if !slices.Equal(q1.Keys, []string{"a"}) || !slices.Equal(q2.Keys, []string{"c"}) {
		t.Fatalf("q1=%v q2=%v", q1.Keys, q2.Keys)
	}
}

func TestQueryCache_MaxEntriesDropsOldest(t *testing.T) {
	q := newQueryCache(time.Minute, 2)
	q.Set("q1", []string{"a"}, "")
	time.Sleep(time.Millisecond)
	q.Set("q2", []string{"b"}, "")
	time.Sleep(time.Millisecond)
	q.Set("q3", []string{"c"}, "")

	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
	if _, ok := q.Get("q1"); ok {
		t.Fatal("oldest entry kept")
	}
	if _, ok := q.Get("q3"); !ok {
		t.Fatal("newest entry dropped")
	}
}

func TestQueryCache_Expires(t *testing.T) {
	q := newQueryCache(20*time.Millisecond, 10)
	q.Set("q", []string{"a"}, "")
	time.Sleep(40 * time.Millisecond)
	if _, ok := q.Get("q"); ok {
		t.Fatal("expired entry returned")
	}
}

func TestQueryCache_Clear(t *testing.T) {
	q := newQueryCache(time.Minute, 10)
	q.Set("q1", []string{"a"}, "")
	q.Set("q2", []string{"b"}, "")
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("Len = %d after Clear", q.Len())
	}
}

func TestAppendUnique(t *testing.T) {
	got := appendUnique([]string{"a", "b"}, []string{"b", "c", "c", "a", "d"})
	if !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("got %v", got)
	}
	if got := appendUnique(nil, []string{"x", "x"}); !slices.Equal(got, []string{"x"}) {
		t.Fatalf("got %v", got)
	}
}
