package presenter

import (
	"fmt"
	"slices"
)

// Direction is the order of a sort.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// CompareFunc orders two items like cmp.Compare.
type CompareFunc[T any] func(a, b T) int

// SortBy is the active sort of a presenter. An empty Key keeps source order.
type SortBy struct {
	Key       string
	Direction Direction
}

// Sorter sorts items by named comparators.
type Sorter[T any] struct {
	compare map[string]CompareFunc[T]
}

// NewSorter returns a Sorter over the given comparators, keyed by column name.
func NewSorter[T any](compare map[string]CompareFunc[T]) *Sorter[T] {
	m := make(map[string]CompareFunc[T], len(compare))
	for k, fn := range compare {
		m[k] = fn
	}
	return &Sorter[T]{compare: m}
}

// Has reports whether key names a comparator.
func (s *Sorter[T]) Has(key string) bool {
	_, ok := s.compare[key]
	return ok
}

// Sort returns a sorted copy of items. Descending is the reverse of the
// stable ascending order, so flipping the direction is a plain Reverse.
func (s *Sorter[T]) Sort(items []T, by SortBy) ([]T, error) {
	out := slices.Clone(items)
	if by.Key == "" {
		return out, nil
	}
	cmp, ok := s.compare[by.Key]
	if !ok {
		return nil, fmt.Errorf("presenter: unknown sort key %q", by.Key)
	}
	slices.SortStableFunc(out, cmp)
	if by.Direction == Desc {
		slices.Reverse(out)
	}
	return out, nil
}
