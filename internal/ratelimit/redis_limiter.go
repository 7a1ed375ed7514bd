package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "galicia:ratelimit:"

// slidingWindow trims the window, admits the request only while under the
// limit and reports {allowed, count, oldest score}. Scores are milliseconds.
// Rejected requests are not recorded, so a blocked client is not pushed
// further back.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RedisLimiter shares sliding windows between dashboard instances.
type RedisLimiter struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLimiter{client: client, log: log, now: time.Now}
}

// Check admits one request for key. A rejection returns the result together
// with ErrLimitExceeded, matching MemoryLimiter.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("ratelimit: redis client is not configured")
	}

	now := l.now()
	if limit <= 0 {
		return &Result{ResetAt: now.Add(window)}, ErrLimitExceeded
	}

	out, err := slidingWindow.Run(ctx, l.client,
		[]string{redisKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		l.log.Error("rate limit script failed", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("ratelimit: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("ratelimit: unexpected script reply %v", out)
	}

	result := &Result{
		Allowed:   out[0] == 1,
		Remaining: max(limit-int(out[1]), 0),
		ResetAt:   time.UnixMilli(out[2]).Add(window),
	}
	if !result.Allowed {
		return result, ErrLimitExceeded
	}
	return result, nil
}
