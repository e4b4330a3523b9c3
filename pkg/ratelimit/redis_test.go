package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_BurstThenRefill(t *testing.T) {
	_, client := newTestRedis(t)
	clock := newFakeClock()
	limiter := NewRedisLimiter(client, Config{MaxTokens: 10, RefillPerSecond: 10, Now: clock.Now}, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should have been admitted", i+1)
		}
	}

	if ok, _ := limiter.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("11th request should be rejected")
	}

	clock.Advance(time.Second)
	if ok, _ := limiter.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("expected a token after one second")
	}
}

func TestRedisLimiter_SetsExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, Config{IdleTTL: 5 * time.Minute}, nil)

	if !limiter.Admit(context.Background(), "k") {
		t.Fatal("first request should be admitted")
	}

	ttl := mr.TTL(defaultRedisPrefix + "k")
	if ttl != 5*time.Minute {
		t.Errorf("expected 5m ttl on bucket key, got %v", ttl)
	}
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, Config{MaxTokens: 1}, nil)
	mr.Close()

	if !limiter.Admit(context.Background(), "k") {
		t.Error("expected admission when redis is unavailable")
	}
	if _, err := limiter.Allow(context.Background(), "k"); err == nil {
		t.Error("expected Allow to surface the redis error")
	}
}
