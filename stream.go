package viewcache

import (
	"sync"
	"sync/atomic"
)

// Stream is a push stream of V. Subscribers run synchronously, in subscription
// order, on the goroutine that published. Delivery is serialized so every
// subscriber observes values in publish order.
//
// A replay stream remembers its latest value and hands it to each new subscriber.
//
// A subscriber must not Subscribe to, or Publish on, the stream that is calling it.
type Stream[V any] struct {
	replay bool

	deliverMu sync.Mutex // held for the whole delivery round

	mu     sync.Mutex
	subs   []*subscriber[V]
	last   V
	has    bool
	closed bool
}

type subscriber[V any] struct {
	fn     func(V)
	active atomic.Bool
}

// NewStream returns an event stream: values are only seen by current subscribers.
func NewStream[V any]() *Stream[V] { return &Stream[V]{} }

// NewReplayStream returns a stream that replays its latest value on Subscribe.
func NewReplayStream[V any]() *Stream[V] { return &Stream[V]{replay: true} }

// Subscribe registers fn. On a replay stream with a value, fn is called with it
// before Subscribe returns.
func (s *Stream[V]) Subscribe(fn func(V)) *Subscription {
	sub := &subscriber[V]{fn: fn}
	sub.active.Store(true)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &Subscription{}
	}
	s.subs = append(s.subs, sub)
	last, has := s.last, s.has && s.replay
	s.mu.Unlock()

	if has {
		fn(last)
	}
	return &Subscription{cancel: func() { s.remove(sub) }}
}

// Publish sends v to every active subscriber. No-op after Close.
func (s *Stream[V]) Publish(v V) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.last, s.has = v, true
	subs := make([]*subscriber[V], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		// a subscriber earlier in this round may have unsubscribed a later one
		if sub.active.Load() {
			sub.fn(v)
		}
	}
}

// Value returns the latest published value.
func (s *Stream[V]) Value() (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.has
}

// Len returns the number of active subscribers.
func (s *Stream[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close drops every subscriber. Later Publish and Subscribe calls are no-ops.
func (s *Stream[V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		sub.active.Store(false)
	}
	s.subs = nil
	s.closed = true
}

func (s *Stream[V]) remove(target *subscriber[V]) {
	target.active.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == target {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Subscription releases one Subscribe registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe is idempotent and safe on a nil Subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Subscriptions is a set released at once, typically when its owner is disposed.
type Subscriptions struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Add puts subs in the set. After Close they are released right away.
func (s *Subscriptions) Add(subs ...*Subscription) {
	s.mu.Lock()
	if !s.closed {
		s.subs = append(s.subs, subs...)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Unsubscribe releases every subscription in the set and empties it.
func (s *Subscriptions) Unsubscribe() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Close is Unsubscribe for good: later Add calls release what they are given.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Unsubscribe()
}

func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
