package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
)

func testRules(enabled bool) *Rules {
	return NewRules(config.RateLimitConfig{
		Enabled:   enabled,
		Whitelist: []int64{777},
		Global:    config.RateLimitRule{Limit: 1000, Window: "1m"},
		PerUser:   config.RateLimitRule{Limit: 5, Window: "1m"},
		Commands: config.RateLimitCommands{
			Control: config.RateLimitRule{Limit: 2, Window: "1m"},
			Refresh: config.RateLimitRule{Limit: 4, Window: "1m"},
			Status:  config.RateLimitRule{Limit: 60, Window: "bogus"},
		},
	})
}

func TestRules_GetCommandLimit(t *testing.T) {
	rules := testRules(true)

	limit, window, err := rules.GetCommandLimit(CommandControl)
	require.NoError(t, err)
	assert.Equal(t, 2, limit)
	assert.Equal(t, time.Minute, window)

	_, _, err = rules.GetCommandLimit(CommandStatus)
	assert.Error(t, err)

	_, _, err = rules.GetCommandLimit("login")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, _, err = NewRules(config.RateLimitConfig{}).GetCommandLimit(CommandRefresh)
	assert.ErrorIs(t, err, ErrRuleNotSet)

	limit, _, err = rules.GetGlobalLimit()
	require.NoError(t, err)
	assert.Equal(t, 1000, limit)

	assert.True(t, rules.IsWhitelisted(777))
	assert.False(t, rules.IsWhitelisted(0))
	assert.False(t, rules.IsWhitelisted(1))
}

func TestGuard_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("command limit", func(t *testing.T) {
		guard := NewGuard(NewMemoryLimiter(testLogger()), testRules(true), testLogger())

		require.NoError(t, guard.Allow(ctx, "ip:10.0.0.1", 0, CommandControl))
		require.NoError(t, guard.Allow(ctx, "ip:10.0.0.1", 0, CommandControl))

		err := guard.Allow(ctx, "ip:10.0.0.1", 0, CommandControl)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeRateLimit, appErr.Code)

		assert.NoError(t, guard.Allow(ctx, "ip:10.0.0.1", 0, CommandRefresh), "other commands keep their own budget")
	})

	t.Run("per user limit", func(t *testing.T) {
		guard := NewGuard(NewMemoryLimiter(testLogger()), testRules(true), testLogger())

		for i := 0; i < 5; i++ {
			require.NoError(t, guard.Allow(ctx, "user:1", 1, ""))
		}
		assert.Error(t, guard.Allow(ctx, "user:1", 1, ""))
	})

	t.Run("whitelist and disabled", func(t *testing.T) {
		guard := NewGuard(NewMemoryLimiter(testLogger()), testRules(true), testLogger())
		for i := 0; i < 10; i++ {
			require.NoError(t, guard.Allow(ctx, "user:777", 777, CommandControl))
		}

		guard = NewGuard(NewMemoryLimiter(testLogger()), testRules(false), testLogger())
		for i := 0; i < 10; i++ {
			require.NoError(t, guard.Allow(ctx, "ip:1", 0, CommandControl))
		}
	})

	t.Run("backend failure fails open", func(t *testing.T) {
		guard := NewGuard(failingLimiter{}, testRules(true), testLogger())
		assert.NoError(t, guard.Allow(ctx, "ip:1", 0, CommandControl))
	})

	t.Run("nil guard", func(t *testing.T) {
		var guard *Guard
		assert.NoError(t, guard.Allow(ctx, "ip:1", 0, CommandControl))
	})
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis: connection refused")
}

func TestAdaptiveLimiter_FallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	result, err := limiter.Check(ctx, "ip:1", 4, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	mr.Close()

	// the fallback halves the limit
	for i := 0; i < 2; i++ {
		_, err = limiter.Check(ctx, "ip:1", 4, time.Minute)
		require.NoError(t, err)
	}
	_, err = limiter.Check(ctx, "ip:1", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}
