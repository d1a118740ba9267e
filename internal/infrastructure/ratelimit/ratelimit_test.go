package ratelimit

import (
	"context"
	"log/slog"
	"io"
	"testing"

	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_NoopWhenMaxRPSNotPositive(t *testing.T) {
	limiter := Build(context.Background(), config.RateLimitConfig{MaxRPS: 0}, discardLogger())
	_, ok := limiter.(Noop)
	assert.True(t, ok)
}

func TestBuild_NoopWhenBackendURLMissing(t *testing.T) {
	limiter := Build(context.Background(), config.RateLimitConfig{MaxRPS: 5}, discardLogger())
	_, ok := limiter.(Noop)
	assert.True(t, ok)
}

func TestBuild_NoopWhenRedisUnreachable(t *testing.T) {
	limiter := Build(context.Background(), config.RateLimitConfig{MaxRPS: 5, BackendURL: "redis://127.0.0.1:1"}, discardLogger())
	_, ok := limiter.(Noop)
	assert.True(t, ok)
}

func TestNoop_AlwaysAllows(t *testing.T) {
	result, err := (Noop{}).Acquire(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.WaitSeconds)
	assert.Equal(t, 0, result.WaitEvents)
}

func TestNewRedisTokenBucket_RejectsNonPositiveRPS(t *testing.T) {
	_, err := NewRedisTokenBucket(nil, "key", 0)
	assert.Error(t, err)
}
