package presenter

import (
	"slices"
	"sync"

	"github.com/unkn0wn-root/viewcache"
)

// SortingStatus tells whether the displayed order covers the whole list.
type SortingStatus int

const (
	// Valid: every item is loaded, or no sort is active.
	Valid SortingStatus = iota
	// Partial: a sort is active but more pages exist, so the order only
	// holds for the items loaded so far.
	Partial
)

func (s SortingStatus) String() string {
	if s == Partial {
		return "partial"
	}
	return "valid"
}

// Source is what a Presenter reads, typically a *viewcache.ListView.
type Source[T any] interface {
	Items() *viewcache.Stream[[]T]
	HasMore() *viewcache.Stream[bool]
}

// Config configures a Presenter. Compare is keyed by sort column.
type Config[T any] struct {
	Compare map[string]CompareFunc[T]
	Initial SortBy
	Logger  viewcache.Logger // if nil, NopLogger is used
}

// Presenter keeps a sorted copy of a source list.
type Presenter[T any] struct {
	sorter *Sorter[T]
	log    viewcache.Logger

	pubMu sync.Mutex // orders computing and publishing sorted items

	mu      sync.Mutex
	by      SortBy
	source  []T
	hasMore bool

	items     *viewcache.Stream[[]T]
	status    *viewcache.Stream[SortingStatus]
	sortingBy *viewcache.Stream[SortBy]
	subs      viewcache.Subscriptions
}

// New subscribes to source. An Initial sort with an unknown key falls back
// to source order.
func New[T any](source Source[T], cfg Config[T]) *Presenter[T] {
	p := &Presenter[T]{
		sorter:    NewSorter(cfg.Compare),
		log:       cfg.Logger,
		items:     viewcache.NewReplayStream[[]T](),
		status:    viewcache.NewReplayStream[SortingStatus](),
		sortingBy: viewcache.NewReplayStream[SortBy](),
	}
	if p.log == nil {
		p.log = viewcache.NopLogger{}
	}
	if cfg.Initial.Key == "" || p.sorter.Has(cfg.Initial.Key) {
		p.by = cfg.Initial
	} else {
		p.log.Warn("unknown initial sort key", viewcache.Fields{"key": cfg.Initial.Key})
	}
	p.sortingBy.Publish(p.by)

	p.subs.Add(
		source.HasMore().Subscribe(func(more bool) {
			p.mu.Lock()
			p.hasMore = more
			p.mu.Unlock()
			p.publishStatus()
		}),
		source.Items().Subscribe(func(items []T) {
			p.mu.Lock()
			p.source = items
			p.mu.Unlock()
			p.resort()
		}),
	)
	return p
}

// Items emits the sorted list.
func (p *Presenter[T]) Items() *viewcache.Stream[[]T] { return p.items }

// SortingStatus emits Partial while a sort is active over an incomplete list.
func (p *Presenter[T]) SortingStatus() *viewcache.Stream[SortingStatus] { return p.status }

// SortingBy emits the active sort.
func (p *Presenter[T]) SortingBy() *viewcache.Stream[SortBy] { return p.sortingBy }

// SortBy sorts by key in direction dir. An empty key restores source order.
func (p *Presenter[T]) SortBy(key string, dir Direction) error {
	if key != "" && !p.sorter.Has(key) {
		_, err := p.sorter.Sort(nil, SortBy{Key: key})
		return err
	}
	p.mu.Lock()
	p.by = SortBy{Key: key, Direction: dir}
	p.mu.Unlock()
	p.sortingBy.Publish(SortBy{Key: key, Direction: dir})
	p.resort()
	return nil
}

// SetDirection flips the order of the current sort by reversing the sorted
// list in place, without sorting again.
func (p *Presenter[T]) SetDirection(dir Direction) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	if p.by.Direction == dir {
		p.mu.Unlock()
		return
	}
	p.by.Direction = dir
	by := p.by
	sorted, _ := p.items.Value()
	p.mu.Unlock()

	p.sortingBy.Publish(by)
	if by.Key == "" {
		return
	}
	out := slices.Clone(sorted)
	slices.Reverse(out)
	p.items.Publish(out)
}

// Dispose stops following the source and completes the streams.
func (p *Presenter[T]) Dispose() {
	p.subs.Close()
	p.items.Close()
	p.status.Close()
	p.sortingBy.Close()
}

func (p *Presenter[T]) resort() {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	source, by := p.source, p.by
	p.mu.Unlock()

	sorted, err := p.sorter.Sort(source, by)
	if err != nil {
		p.log.Error("sort failed", viewcache.Fields{"key": by.Key, "err": err.Error()})
		sorted = slices.Clone(source)
	}
	p.items.Publish(sorted)
	p.publishStatus()
}

func (p *Presenter[T]) publishStatus() {
	p.mu.Lock()
	partial := p.hasMore && p.by.Key != ""
	p.mu.Unlock()
	if partial {
		p.status.Publish(Partial)
	} else {
		p.status.Publish(Valid)
	}
}
