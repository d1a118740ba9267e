// Package ratelimit implements the bank-call rate limiter: a no-op
// pass-through and a Redis-backed token bucket. Grounded on
// original_source's wallets/integrations/rate_limiter.py (BaseRateLimiter,
// NoopRateLimiter, RedisTokenBucketRateLimiter, build_rate_limiter) and,
// for the go-redis client shape, 1mb-dev-nivomoney's
// shared/cache/redis.go and Haleralex-PayBridge's go-redis dependency —
// neither of which the teacher itself wires, enriching this module's
// dependency surface per the task's "enrich from the rest of the pack"
// instruction.
package ratelimit

import (
	"context"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
)

// Noop never throttles; used when bank_max_rps <= 0 or when the Redis
// backend is unreachable at startup (fail-open per spec.md §4.2).
type Noop struct{}

func (Noop) Acquire(ctx context.Context, cost int) (application.AcquireResult, error) {
	return application.AcquireResult{}, nil
}
