package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "scout:bucket:"

// tokenBucketScript refills and consumes atomically so that several server
// replicas can share one bucket per identity.
// KEYS[1]=bucket, ARGV = max, refill/sec, now (ms), ttl (ms).
var tokenBucketScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = max
	ts = now
end

local elapsed = now - ts
if elapsed > 0 then
	tokens = math.min(max, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ttl)
return allowed
`)

// RedisLimiter is the token bucket of Limiter stored in Redis. Idle buckets
// are garbage collected by key expiry instead of Sweep.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	prefix string
	logger *slog.Logger
}

// NewRedisLimiter creates a limiter that keeps its buckets in Redis.
func NewRedisLimiter(client *redis.Client, cfg Config, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client: client,
		cfg:    cfg.withDefaults(),
		prefix: defaultRedisPrefix,
		logger: logger,
	}
}

// Allow runs the bucket script for key. Errors are returned to the caller.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.cfg.Now().UnixMilli()
	ttl := l.cfg.IdleTTL.Milliseconds()

	allowed, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + key},
		l.cfg.MaxTokens, l.cfg.RefillPerSecond, now, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("token bucket script: %w", err)
	}
	return allowed == 1, nil
}

// Admit reports whether key may proceed. When Redis is unreachable the
// request is admitted and the error logged.
func (l *RedisLimiter) Admit(ctx context.Context, key string) bool {
	ok, err := l.Allow(ctx, key)
	if err != nil {
		l.logger.Warn("admission store unavailable, admitting request", "key", key, "err", err)
		return true
	}
	return ok
}
