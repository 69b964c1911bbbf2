package main

import (
	"context"
	"fmt"
	"net/url"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/viewcache"
	"github.com/unkn0wn-root/viewcache/codec"
	"github.com/unkn0wn-root/viewcache/genstore"
	asynchook "github.com/unkn0wn-root/viewcache/hooks/async"
	"github.com/unkn0wn-root/viewcache/internal/config"
	"github.com/unkn0wn-root/viewcache/internal/logger"
	vzap "github.com/unkn0wn-root/viewcache/log/zap"
	"github.com/unkn0wn-root/viewcache/provider"
	"github.com/unkn0wn-root/viewcache/provider/bigcache"
	rediscache "github.com/unkn0wn-root/viewcache/provider/redis"
	"github.com/unkn0wn-root/viewcache/provider/ristretto"
	"github.com/unkn0wn-root/viewcache/remote"
	"github.com/unkn0wn-root/viewcache/sloghooks"
)

// stack is everything a command needs: one node cache per pool, shared by
// the getters, plus the resources to release on exit.
type stack struct {
	cfg     *config.Config
	log     *zap.Logger
	vlog    viewcache.Logger
	tracker *viewcache.Tracker
	hooks   *asynchook.Hooks

	nodes *viewcache.TargetedCache[nodeParams, node]
	list  *viewcache.ListGetter[nodeParams, node]
	get   *viewcache.EntityGetter[nodeParams, node]

	closers []func(context.Context) error
}

func newStack(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*stack, error) {
	s := &stack{
		cfg:     cfg,
		log:     zl,
		vlog:    vzap.Logger{L: zl.Named("viewcache")},
		tracker: viewcache.NewTracker(),
	}
	ok := false
	defer func() {
		if !ok {
			s.Close(ctx)
		}
	}()

	s.hooks = asynchook.New(sloghooks.New(logger.Slog(cfg.Log), sloghooks.Options{
		SharedEvery: 10,
		StaleEvery:  10,
	}), 1, 256)

	client, err := remote.New(remote.Options{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		Strict:    cfg.API.Strict,
		UserAgent: "poolwatch",
		Logger:    vzap.Logger{L: zl.Named("remote")},
	})
	if err != nil {
		return nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	s.nodes, err = viewcache.NewTargetedCache(poolTarget, viewcache.CacheOptions[node]{
		Key:       nodeKey,
		Namespace: "nodes",
		Merge:     mergeNode,
		Store:     store,
		Logger:    s.vlog,
		Tracker:   s.tracker,
	})
	if err != nil {
		return nil, err
	}

	listFn, nextFn := remote.ListFuncs[nodeParams, node](client, func(p nodeParams) string {
		return "pools/" + url.PathEscape(p.PoolID) + "/nodes"
	})
	s.list, err = viewcache.NewListGetter(viewcache.ListGetterOptions[nodeParams, node]{
		Caches:   s.nodes,
		List:     listFn,
		ListNext: nextFn,
		Logger:   s.vlog,
		Hooks:    s.hooks,
	})
	if err != nil {
		return nil, err
	}

	s.get, err = viewcache.NewEntityGetter(viewcache.EntityGetterOptions[nodeParams, node]{
		Caches: s.nodes,
		Fetch: remote.EntityFunc[nodeParams, node](client, func(p nodeParams) string {
			return "pools/" + url.PathEscape(p.PoolID) + "/nodes/" + url.PathEscape(p.NodeID)
		}),
		Key:    func(p nodeParams) string { return nodeKey(node{ID: p.NodeID}) },
		Logger: s.vlog,
		Hooks:  s.hooks,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return s, nil
}

// store returns the StoreFactory for the configured provider; nil keeps
// entities in process memory.
func (s *stack) store(ctx context.Context) (viewcache.StoreFactory[node], error) {
	cc := s.cfg.Cache
	if cc.Provider == config.ProviderMemory {
		return nil, nil
	}
	cdc, err := codec.ForName[node](cc.Codec)
	if err != nil {
		return nil, err
	}

	var (
		p      provider.Provider
		epochs genstore.EpochStore
	)
	switch cc.Provider {
	case config.ProviderRistretto:
		rp, err := ristretto.New(ristretto.Config{
			NumCounters: max(cc.MaxCost/64, 1000),
			MaxCost:     cc.MaxCost,
		})
		if err != nil {
			return nil, fmt.Errorf("ristretto: %w", err)
		}
		p = rp
	case config.ProviderBigCache:
		bp, err := bigcache.New(ctx, bigcache.Config{LifeWindow: cc.TTL})
		if err != nil {
			return nil, fmt.Errorf("bigcache: %w", err)
		}
		p = bp
	case config.ProviderRedis:
		rdb := goredis.NewClient(&goredis.Options{Addr: cc.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cc.RedisAddr, err)
		}
		rp, err := rediscache.New(rediscache.Config{Client: rdb, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		p = rp
		// epochs are shared so a clear in one process invalidates the others
		epochs = genstore.NewRedis(rdb, cc.EpochPrefix, 0)
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cc.Provider)
	}
	if epochs == nil {
		epochs = genstore.NewLocal(nil, 0, 0)
	}
	s.closers = append(s.closers, epochs.Close, p.Close)

	s.log.Info("cache provider ready",
		zap.String("provider", cc.Provider),
		zap.String("codec", cc.Codec),
		zap.Duration("ttl", cc.TTL))

	return viewcache.NewProviderStore(viewcache.ProviderStoreOptions[node]{
		Provider: p,
		Codec:    cdc,
		Epochs:   epochs,
		TTL:      cc.TTL,
		Logger:   s.vlog,
		Hooks:    s.hooks,
	})
}

// Close disposes every view and cache, then releases providers. Views still
// live at this point were leaked by a command and are logged.
func (s *stack) Close(ctx context.Context) {
	if leaks := s.tracker.Leaks(); len(leaks) > 0 {
		for _, l := range leaks {
			s.log.Warn("view not disposed", zap.String("id", l.ID), zap.String("kind", l.Kind))
		}
	}
	s.tracker.DisposeAll()
	if s.hooks != nil {
		s.hooks.Close()
		if n := s.hooks.Dropped(); n > 0 {
			s.log.Debug("hook events dropped", zap.Uint64("count", n))
		}
	}
	// providers last, after nothing reads them
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.log.Warn("close failed", zap.Error(err))
		}
	}
}
