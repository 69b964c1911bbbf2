// Package asynchook moves hook calls off the hot path onto worker goroutines.
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/viewcache"
)

type Hooks struct {
	inner   viewcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ viewcache.Hooks = (*Hooks)(nil)

// New starts workers goroutines (0 => 1) draining a queue of qlen (0 => 1024).
func New(inner viewcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers the queued events and stops the workers. Events raised
// after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// Close raced with this send
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchShared(kind, key string) { h.try(func() { h.inner.FetchShared(kind, key) }) }
func (h *Hooks) FetchFailed(kind, key string, err error) {
	h.try(func() { h.inner.FetchFailed(kind, key, err) })
}
func (h *Hooks) StaleDropped(id string, issued, current uint64) {
	h.try(func() { h.inner.StaleDropped(id, issued, current) })
}
func (h *Hooks) SelfHeal(k, reason string)       { h.try(func() { h.inner.SelfHeal(k, reason) }) }
func (h *Hooks) ProviderSetRejected(k string)    { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) EpochError(ns string, err error) { h.try(func() { h.inner.EpochError(ns, err) }) }
