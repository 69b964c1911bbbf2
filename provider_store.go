package viewcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/viewcache/codec"
	"github.com/unkn0wn-root/viewcache/genstore"
	"github.com/unkn0wn-root/viewcache/internal/wire"
	"github.com/unkn0wn-root/viewcache/provider"
)

const defaultProviderTimeout = 2 * time.Second

// ProviderStoreOptions configure NewProviderStore. Provider and Codec are required.
type ProviderStoreOptions[T any] struct {
	Provider provider.Provider
	Codec    codec.Codec[T]

	Epochs  genstore.EpochStore                       // nil => in-process epochs
	TTL     time.Duration                             // entry lifetime; 0 => provider default
	Cost    func(storageKey string, raw []byte) int64 // nil => len(raw)
	Timeout time.Duration                             // per provider call; 0 => 2s

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// NewProviderStore returns a StoreFactory that keeps entities in a byte
// provider. Entries are framed with their key and the namespace epoch; Clear
// advances the epoch so entries written before it read as misses and are
// deleted on read. Provider and epoch failures are logged and degrade to
// cache misses. The provider and epoch store are shared and never closed here.
func NewProviderStore[T any](opts ProviderStoreOptions[T]) (StoreFactory[T], error) {
	if opts.Provider == nil || opts.Codec == nil {
		return nil, errors.New("viewcache: provider store needs Provider and Codec")
	}
	if opts.Epochs == nil {
		opts.Epochs = genstore.NewLocal(nil, 0, 0)
	}
	if opts.Cost == nil {
		opts.Cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	opts.Timeout = coalesce(opts.Timeout, defaultProviderTimeout)
	opts.Logger = coalesce[Logger](opts.Logger, NopLogger{})
	opts.Hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	return func(ns string) (Store[T], error) {
		if ns == "" {
			return nil, fmt.Errorf("viewcache: provider store needs a namespace")
		}
		return &providerStore[T]{
			opts:   opts,
			ns:     ns,
			prefix: "entity:" + ns + ":",
			keys:   make(map[string]struct{}),
		}, nil
	}, nil
}

// providerStore is the Store of one namespace. Reads may delete stale
// entries, so the key index has its own lock.
type providerStore[T any] struct {
	opts   ProviderStoreOptions[T]
	ns     string
	prefix string

	mu   sync.Mutex
	keys map[string]struct{} // keys written through this store
}

func (s *providerStore[T]) storageKey(key string) string { return s.prefix + key }

func (s *providerStore[T]) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.Timeout)
}

func (s *providerStore[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := s.ctx()
	defer cancel()

	sk := s.storageKey(key)
	raw, ok, err := s.opts.Provider.Get(ctx, sk)
	if err != nil {
		s.opts.Logger.Warn("provider get failed", Fields{"key": sk, "err": err.Error()})
		return zero, false
	}
	if !ok {
		s.forget(key)
		return zero, false
	}

	entry, err := wire.Decode(raw)
	if err != nil || entry.Key != key {
		s.heal(ctx, key, "corrupt")
		return zero, false
	}
	epoch, err := s.opts.Epochs.Current(ctx, s.ns)
	if err != nil {
		s.opts.Hooks.EpochError(s.ns, err)
		s.opts.Logger.Warn("epoch read failed", Fields{"ns": s.ns, "err": err.Error()})
		return zero, false
	}
	if entry.Epoch != epoch {
		s.heal(ctx, key, "epoch_mismatch")
		return zero, false
	}
	v, err := s.opts.Codec.Decode(entry.Payload)
	if err != nil {
		s.heal(ctx, key, "value_decode")
		return zero, false
	}
	return v, true
}

func (s *providerStore[T]) Set(key string, v T) {
	ctx, cancel := s.ctx()
	defer cancel()

	sk := s.storageKey(key)
	payload, err := s.opts.Codec.Encode(v)
	if err != nil {
		s.opts.Logger.Error("entity encode failed", Fields{"key": sk, "err": err.Error()})
		return
	}
	epoch, err := s.opts.Epochs.Current(ctx, s.ns)
	if err != nil {
		s.opts.Hooks.EpochError(s.ns, err)
		s.opts.Logger.Warn("epoch read failed", Fields{"ns": s.ns, "err": err.Error()})
		return
	}
	raw, err := wire.Encode(wire.Entry{Epoch: epoch, Key: key, Payload: payload})
	if err != nil {
		s.opts.Logger.Error("entity frame failed", Fields{"key": sk, "err": err.Error()})
		return
	}

	ok, err := s.opts.Provider.Set(ctx, sk, raw, s.opts.Cost(sk, raw), s.opts.TTL)
	switch {
	case err != nil:
		s.opts.Logger.Warn("provider set failed", Fields{"key": sk, "err": err.Error()})
		s.forget(key)
	case !ok:
		s.opts.Hooks.ProviderSetRejected(sk)
		s.forget(key)
	default:
		s.mu.Lock()
		s.keys[key] = struct{}{}
		s.mu.Unlock()
	}
}

func (s *providerStore[T]) Del(key string) {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.opts.Provider.Del(ctx, s.storageKey(key)); err != nil {
		s.opts.Logger.Warn("provider del failed", Fields{"key": s.storageKey(key), "err": err.Error()})
	}
	s.forget(key)
}

// Keys lists keys written through this store that were not seen missing.
// Entries the provider evicted since are dropped on their next Get.
func (s *providerStore[T]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clear advances the namespace epoch, then deletes the entries it knows.
// Entries written by other processes are left to self-heal on read.
func (s *providerStore[T]) Clear() {
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.opts.Epochs.Advance(ctx, s.ns); err != nil {
		s.opts.Hooks.EpochError(s.ns, err)
		s.opts.Logger.Error("epoch advance failed", Fields{"ns": s.ns, "err": err.Error()})
	}

	s.mu.Lock()
	keys := s.keys
	s.keys = make(map[string]struct{})
	s.mu.Unlock()

	for k := range keys {
		if err := s.opts.Provider.Del(ctx, s.storageKey(k)); err != nil {
			s.opts.Logger.Warn("provider del failed", Fields{"key": s.storageKey(k), "err": err.Error()})
		}
	}
}

func (s *providerStore[T]) heal(ctx context.Context, key, reason string) {
	sk := s.storageKey(key)
	s.opts.Hooks.SelfHeal(sk, reason)
	if err := s.opts.Provider.Del(ctx, sk); err != nil {
		s.opts.Logger.Warn("self-heal delete failed", Fields{"key": sk, "reason": reason, "err": err.Error()})
	}
	s.forget(key)
}

func (s *providerStore[T]) forget(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}
