package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares epochs across processes and survives restarts. With a TTL,
// idle epochs expire; readers then see epoch 0 and stale entries self-heal.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ EpochStore = (*Redis)(nil)

// NewRedis returns a Redis-backed EpochStore. Keys are "epoch:<prefix>:<ns>".
// ttl <= 0 keeps epochs forever. The client is owned by the caller.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, prefix: prefix, ttl: ttl}
}

func (s *Redis) key(ns string) string { return "epoch:" + s.prefix + ":" + ns }

func (s *Redis) Current(ctx context.Context, ns string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(ns)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseEpoch(ns, res)
}

func (s *Redis) CurrentMany(ctx context.Context, nss []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(nss))
	if len(nss) == 0 {
		return out, nil
	}
	keys := make([]string, len(nss))
	for i, ns := range nss {
		keys[i] = s.key(ns)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			out[nss[i]] = 0
			continue
		}
		e, err := parseEpoch(nss[i], fmt.Sprint(v))
		if err != nil {
			return nil, err
		}
		out[nss[i]] = e
	}
	return out, nil
}

// Advance pipelines INCR and EXPIRE when a TTL is set.
func (s *Redis) Advance(ctx context.Context, ns string) (uint64, error) {
	k := s.key(ns)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		return uint64(v), err
	}
	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *Redis) Prune(time.Duration) {}

// Close is a no-op: the client belongs to the caller.
func (s *Redis) Close(context.Context) error { return nil }

func parseEpoch(ns, v string) (uint64, error) {
	e, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: epoch of %q: %w", ns, err)
	}
	return e, nil
}
