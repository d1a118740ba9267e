package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/redis/go-redis/v9"
)

// tokenBucketScript is a direct port of original_source's
// wallets/integrations/rate_limiter.py _TOKEN_BUCKET_LUA: a single-key
// token bucket with capacity fixed at 1.0, refilled continuously at `rate`
// tokens/second, evaluated atomically server-side.
const tokenBucketScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local capacity = 1.0

local tokens = tonumber(redis.call("HGET", key, "tokens"))
local ts_ms = tonumber(redis.call("HGET", key, "ts_ms"))

if tokens == nil then
  tokens = capacity
end
if ts_ms == nil then
  ts_ms = now_ms
end

local elapsed = math.max(0, now_ms - ts_ms) / 1000.0
tokens = math.min(capacity, tokens + elapsed * rate)

if tokens >= cost then
  tokens = tokens - cost
  redis.call("HSET", key, "tokens", tokens, "ts_ms", now_ms)
  return {1, 0}
end

-- Redis truncates a Lua number reply to an integer, so the wait is
-- reported in whole milliseconds rather than fractional seconds; the Go
-- side converts back to seconds.
local wait_ms = math.ceil((cost - tokens) / rate * 1000)
redis.call("HSET", key, "tokens", tokens, "ts_ms", now_ms)
return {0, wait_ms}
`

// RedisTokenBucket implements application.RateLimiter against a Redis
// backend, grounded on original_source's RedisTokenBucketRateLimiter.
type RedisTokenBucket struct {
	client *redis.Client
	key    string
	maxRPS float64
	script *redis.Script
}

func NewRedisTokenBucket(client *redis.Client, key string, maxRPS float64) (*RedisTokenBucket, error) {
	if maxRPS <= 0 {
		return nil, fmt.Errorf("max_rps must be > 0, got %v", maxRPS)
	}
	return &RedisTokenBucket{
		client: client,
		key:    key,
		maxRPS: maxRPS,
		script: redis.NewScript(tokenBucketScript),
	}, nil
}

// Acquire blocks, re-evaluating the bucket, until cost tokens are
// available, or returns application.ErrRateLimiterUnavailable wrapping the
// underlying cause if Redis cannot be reached.
func (b *RedisTokenBucket) Acquire(ctx context.Context, cost int) (application.AcquireResult, error) {
	var waitTotal float64
	var waitEvents int

	for {
		nowMs := time.Now().UnixMilli()
		raw, err := b.script.Run(ctx, b.client, []string{b.key}, nowMs, b.maxRPS, float64(cost)).Result()
		if err != nil {
			return application.AcquireResult{}, fmt.Errorf("%w: %v", application.ErrRateLimiterUnavailable, err)
		}

		values, ok := raw.([]interface{})
		if !ok || len(values) != 2 {
			return application.AcquireResult{}, fmt.Errorf("%w: unexpected script result shape", application.ErrRateLimiterUnavailable)
		}
		allowed, _ := values[0].(int64)
		waitMs, _ := values[1].(int64)
		waitSeconds := float64(waitMs) / 1000.0
		if waitSeconds < 0 {
			waitSeconds = 0
		}

		if allowed == 1 {
			return application.AcquireResult{WaitSeconds: waitTotal, WaitEvents: waitEvents}, nil
		}

		waitEvents++
		waitTotal += waitSeconds
		if waitSeconds > 0 {
			timer := time.NewTimer(time.Duration(waitSeconds * float64(time.Second)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return application.AcquireResult{WaitSeconds: waitTotal, WaitEvents: waitEvents}, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Build constructs the configured rate limiter, falling back to Noop when
// max_rps <= 0 or the Redis backend cannot be reached, grounded on
// original_source's build_rate_limiter fail-open behavior.
func Build(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) application.RateLimiter {
	if cfg.MaxRPS <= 0 {
		return Noop{}
	}
	if cfg.BackendURL == "" {
		logger.Warn("event=rate_limiter_disabled reason=backend_url_missing")
		return Noop{}
	}

	opts, err := redis.ParseURL(cfg.BackendURL)
	if err != nil {
		logger.Warn("event=rate_limiter_disabled reason=invalid_backend_url", "error", err)
		return Noop{}
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("event=rate_limiter_disabled reason=redis_unavailable", "error", err)
		return Noop{}
	}

	limiter, err := NewRedisTokenBucket(client, cfg.Key, cfg.MaxRPS)
	if err != nil {
		logger.Warn("event=rate_limiter_disabled reason=invalid_config", "error", err)
		return Noop{}
	}
	return limiter
}
