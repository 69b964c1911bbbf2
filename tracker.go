package viewcache

import (
	"slices"
	"sync"
)

// Kinds of instances a Tracker registers.
const (
	KindCache      = "cache"
	KindEntityView = "entity_view"
	KindListView   = "list_view"
)

// Tracker is a registry of live caches and views. Constructors register,
// Dispose deregisters. Tests assert that Live is zero at teardown to catch
// views nobody disposed.
//
// A nil *Tracker is valid and tracks nothing.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]trackedEntry
	order   []string // registration order, for deterministic DisposeAll
}

type trackedEntry struct {
	kind    string
	dispose func()
	clear   func() // caches only
}

// TrackedInstance describes one registered instance.
type TrackedInstance struct {
	ID   string
	Kind string
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]trackedEntry)}
}

func (t *Tracker) register(id, kind string, dispose, clear func()) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		t.order = append(t.order, id)
	}
	t.entries[id] = trackedEntry{kind: kind, dispose: dispose, clear: clear}
}

func (t *Tracker) unregister(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return
	}
	delete(t.entries, id)
	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// Live counts registered instances of every kind.
func (t *Tracker) Live() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// LiveByKind counts registered instances of kind.
func (t *Tracker) LiveByKind(kind string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// Leaks lists the views still registered, in registration order.
// Caches are long-lived by design of their owners and are not reported.
func (t *Tracker) Leaks() []TrackedInstance {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TrackedInstance
	for _, id := range t.order {
		e := t.entries[id]
		if e.kind == KindCache {
			continue
		}
		out = append(out, TrackedInstance{ID: id, Kind: e.kind})
	}
	return out
}

// ClearAllCaches clears every registered cache except the listed ids,
// e.g. after the user switched accounts.
func (t *Tracker) ClearAllCaches(except ...string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	var clears []func()
	for _, id := range t.order {
		e := t.entries[id]
		if e.kind != KindCache || e.clear == nil || slices.Contains(except, id) {
			continue
		}
		clears = append(clears, e.clear)
	}
	t.mu.Unlock()

	for _, fn := range clears {
		fn()
	}
}

// DisposeAll disposes every registered instance, views first, newest first.
func (t *Tracker) DisposeAll() {
	if t == nil {
		return
	}
	t.mu.Lock()
	var views, caches []func()
	for i := len(t.order) - 1; i >= 0; i-- {
		e := t.entries[t.order[i]]
		if e.kind == KindCache {
			caches = append(caches, e.dispose)
		} else {
			views = append(views, e.dispose)
		}
	}
	t.mu.Unlock()

	// dispose funcs call unregister, so the lock must be released first
	for _, fn := range append(views, caches...) {
		fn()
	}
}
