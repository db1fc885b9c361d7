// Package ratelimiter implements a Redis token bucket used to cap
// LLM-backed operations per user. The bucket state lives in Redis for
// atomicity across replicas and is mirrored to Postgres so quotas survive a
// Redis flush.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// BucketAIQuota is the bucket class guarding answer transcription and
// feedback generation.
const BucketAIQuota = "ai"

// Limiter decides whether a subject may spend cost tokens from a bucket.
type Limiter interface {
	Allow(ctx context.Context, bucket, subject string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig describes a token bucket: capacity tokens, refilled at
// RefillRate tokens per second.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// PerMinute builds a bucket allowing n operations per minute.
func PerMinute(n int) BucketConfig {
	if n <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{Capacity: int64(n), RefillRate: float64(n) / 60.0}
}

// RedisLimiter runs the token bucket as a Lua script so the
// read-refill-spend cycle is atomic.
type RedisLimiter struct {
	redis   *redis.Client
	pool    *pgxpool.Pool
	buckets map[string]BucketConfig
	script  *redis.Script
	mu      sync.RWMutex
}

// New constructs a RedisLimiter. A nil Redis client yields a nil limiter,
// which fails open. pool may be nil to disable the Postgres mirror.
func New(rdb *redis.Client, pool *pgxpool.Pool, buckets map[string]BucketConfig) *RedisLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &RedisLimiter{
		redis:   rdb,
		pool:    pool,
		buckets: buckets,
		script:  redis.NewScript(luaTokenBucket),
	}
}

const luaTokenBucket = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

if last_refill == nil then
  last_refill = now
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after = shortage / refill_rate
  end
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)

return { allowed, tokens, last_refill, retry_after }
`

// Allow spends cost tokens from the subject's bucket. An unknown bucket
// class or a Redis error fails open so a cache outage never blocks
// interviews outright.
func (l *RedisLimiter) Allow(ctx context.Context, bucket, subject string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.buckets[bucket]
	l.mu.RUnlock()
	if !ok || cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	now := float64(time.Now().UnixNano()) / 1e9
	key := bucket + ":" + subject
	res, err := l.script.Run(ctx, l.redis, []string{"rate:" + key}, cfg.Capacity, cfg.RefillRate, now, cost).Result()
	if err != nil {
		slog.Error("rate limiter script failed", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 4 {
		slog.Error("rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}

	allowed := asInt64(vals[0]) == 1
	tokens := asFloat64(vals[1])
	lastRefill := asFloat64(vals[2])
	retryAfter := time.Duration(asFloat64(vals[3]) * float64(time.Second))

	if l.pool != nil {
		l.mirror(ctx, key, cfg, tokens, lastRefill)
	}
	return allowed, retryAfter, nil
}

// SetBucketConfig installs or replaces a bucket class at runtime, e.g. when
// the LLM provider advertises new limits in response headers.
func (l *RedisLimiter) SetBucketConfig(bucket string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[bucket] = cfg
}

func (l *RedisLimiter) mirror(ctx context.Context, key string, cfg BucketConfig, tokens, lastRefillSec float64) {
	sec := int64(lastRefillSec)
	nsec := int64((lastRefillSec - float64(sec)) * 1e9)
	if nsec < 0 {
		nsec = 0
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO rate_limit_buckets (bucket_key, capacity, refill_rate, tokens, last_refill)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (bucket_key) DO UPDATE SET
		   capacity = EXCLUDED.capacity,
		   refill_rate = EXCLUDED.refill_rate,
		   tokens = EXCLUDED.tokens,
		   last_refill = EXCLUDED.last_refill`,
		key, cfg.Capacity, cfg.RefillRate, tokens, time.Unix(sec, nsec))
	if err != nil {
		slog.Error("failed to mirror rate limit bucket", slog.String("key", key), slog.Any("error", err))
	}
}

// WarmFromPostgres restores bucket state into Redis after a Redis restart so
// users cannot reset their quota by waiting for a cache flush.
func (l *RedisLimiter) WarmFromPostgres(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return nil
	}
	rows, err := l.pool.Query(ctx, `SELECT bucket_key, tokens, EXTRACT(EPOCH FROM last_refill) FROM rate_limit_buckets`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var tokens, lastRefillSec float64
		if err := rows.Scan(&key, &tokens, &lastRefillSec); err != nil {
			return err
		}
		if err := l.redis.HMSet(ctx, "rate:"+key, "tokens", tokens, "last_refill", lastRefillSec).Err(); err != nil {
			slog.Error("failed to warm bucket from postgres", slog.String("key", key), slog.Any("error", err))
		}
	}
	return rows.Err()
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return math.NaN()
	}
}
