package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

const (
	backendRedis    = "redis"
	backendFallback = "fallback"
)

// AdaptiveLimiter prefers the shared Redis windows and drops to a local
// limiter at half the limit while Redis is failing. A breaker keeps a dead
// Redis from adding latency to every request.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	breaker  *apperrors.CircuitBreaker
	log      *slog.Logger
}

var _ Limiter = (*AdaptiveLimiter)(nil)

func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger, opts ...apperrors.BreakerOption) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}
	if len(opts) == 0 {
		opts = []apperrors.BreakerOption{
			apperrors.WithMinRequests(3),
			apperrors.WithOpenTimeout(15 * time.Second),
		}
	}
	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  apperrors.NewCircuitBreaker(opts...),
		log:      log,
	}
}

func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	var result *Result
	var limitErr error

	err := a.breaker.Call(func() error {
		r, err := a.primary.Check(ctx, key, limit, window)
		if err != nil && !errors.Is(err, ErrLimitExceeded) {
			return err
		}
		result, limitErr = r, err
		return nil
	})
	if err == nil {
		metrics.RecordRateLimitCheck(backendRedis, limitErr == nil)
		return result, limitErr
	}

	metrics.RecordRateLimitBackendError(backendRedis)
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		a.log.Warn("redis rate limiter failed, using local fallback", slog.String("key", key), slog.Any("error", err))
	}

	result, err = a.fallback.Check(ctx, key, max(limit/2, 1), window)
	if err != nil && !errors.Is(err, ErrLimitExceeded) {
		return nil, err
	}
	metrics.RecordRateLimitCheck(backendFallback, err == nil)
	return result, err
}
