package viewcache

// Store holds a cache's values. Cache calls Set, Del and Clear under its write
// lock and Get and Keys under its read lock, so a Store whose Get mutates
// internal state must guard that state itself.
type Store[T any] interface {
	Get(key string) (T, bool)
	Set(key string, v T)
	Del(key string)
	Keys() []string
	Clear()
}

// StoreFactory builds the Store of one cache namespace. TargetedCache calls it
// once per target.
type StoreFactory[T any] func(namespace string) (Store[T], error)

// memStore is the default Store: a plain map without eviction.
type memStore[T any] struct {
	m map[string]T
}

func newMemStore[T any](string) (Store[T], error) {
	return &memStore[T]{m: make(map[string]T)}, nil
}

func (s *memStore[T]) Get(key string) (T, bool) {
	v, ok := s.m[key]
	return v, ok
}

func (s *memStore[T]) Set(key string, v T) { s.m[key] = v }
func (s *memStore[T]) Del(key string)      { delete(s.m, key) }
func (s *memStore[T]) Clear()              { clear(s.m) }

func (s *memStore[T]) Keys() []string {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys
}
