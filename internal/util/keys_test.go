package util

import (
	"strings"
	"testing"
)

func TestHashKey_DeterministicAndOrdered(t *testing.T) {
	a := HashKey("q", "pool=p1", "filter=state eq 'idle'")
	b := HashKey("q", "pool=p1", "filter=state eq 'idle'")
	if a != b {
		t.Fatalf("same parts hashed differently: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "q:") || len(a) != len("q:")+16 {
		t.Fatalf("unexpected shape %q", a)
	}
	if c := HashKey("q", "filter=state eq 'idle'", "pool=p1"); c == a {
		t.Fatalf("part order must matter")
	}
}

func TestHashKey_PartBoundaries(t *testing.T) {
	if HashKey("q", "ab", "c") == HashKey("q", "a", "bc") {
		t.Fatalf("part boundaries must be part of the hash")
	}
}

func TestSortedPairs(t *testing.T) {
	got := SortedPairs(map[string]string{"b": "2", "a": "1"})
	if len(got) != 2 || got[0] != "a=1" || got[1] != "b=2" {
		t.Fatalf("got %v", got)
	}
	if got := SortedPairs(nil); len(got) != 0 {
		t.Fatalf("nil map: %v", got)
	}
}
