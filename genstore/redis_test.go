package genstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestParseEpoch(t *testing.T) {
	if e, err := parseEpoch("nodes:p1", "42"); err != nil || e != 42 {
		t.Fatalf("parseEpoch = %d, %v", e, err)
	}
	if _, err := parseEpoch("nodes:p1", "x"); err == nil {
		t.Fatal("accepted non-numeric epoch")
	}
}

// Set VIEWCACHE_TEST_REDIS=host:port to run against a live server.
func TestRedisAdvance(t *testing.T) {
	addr := os.Getenv("VIEWCACHE_TEST_REDIS")
	if addr == "" {
		t.Skip("VIEWCACHE_TEST_REDIS not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s: %v", addr, err)
	}

	prefix := "viewcache-test-" + time.Now().Format("150405.000000")
	s := NewRedis(rdb, prefix, time.Minute)
	t.Cleanup(func() { rdb.Del(ctx, s.key("nodes:p1")) })

	if e, err := s.Current(ctx, "nodes:p1"); err != nil || e != 0 {
		t.Fatalf("Current = %d, %v", e, err)
	}
	if e, err := s.Advance(ctx, "nodes:p1"); err != nil || e != 1 {
		t.Fatalf("Advance = %d, %v", e, err)
	}
	got, err := s.CurrentMany(ctx, []string{"nodes:p1", "nodes:p2"})
	if err != nil || got["nodes:p1"] != 1 || got["nodes:p2"] != 0 {
		t.Fatalf("CurrentMany = %v, %v", got, err)
	}
	if ttl := rdb.TTL(ctx, s.key("nodes:p1")).Val(); ttl <= 0 {
		t.Fatalf("epoch key without TTL: %v", ttl)
	}
}
