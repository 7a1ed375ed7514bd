package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
)

// Guard applies the per-user rule and then the command rule for one request.
// Limiter failures fail open.
type Guard struct {
	limiter Limiter
	rules   *Rules
	log     *slog.Logger
	now     func() time.Time
}

func NewGuard(limiter Limiter, rules *Rules, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{limiter: limiter, rules: rules, log: log, now: time.Now}
}

// Allow returns a rate limit AppError when subject is over either limit.
// subject identifies the caller ("user:42", "ip:10.0.0.1"); userID is only
// used for the whitelist and may be zero. An empty command skips the command
// rule.
func (g *Guard) Allow(ctx context.Context, subject string, userID int64, command string) error {
	if g == nil || g.limiter == nil || !g.rules.Enabled() || g.rules.IsWhitelisted(userID) {
		return nil
	}

	if limit, window, err := g.rules.GetPerUserLimit(); err == nil {
		if err := g.check(ctx, subject, limit, window); err != nil {
			return err
		}
	}

	if command == "" {
		return nil
	}

	limit, window, err := g.rules.GetCommandLimit(command)
	if err != nil {
		if !errors.Is(err, ErrUnknownCommand) && !errors.Is(err, ErrRuleNotSet) {
			g.log.Error("invalid command rate limit", slog.String("command", command), slog.Any("error", err))
		}
		return nil
	}

	return g.check(ctx, subject+":"+command, limit, window)
}

func (g *Guard) check(ctx context.Context, key string, limit int, window time.Duration) error {
	result, err := g.limiter.Check(ctx, key, limit, window)
	switch {
	case errors.Is(err, ErrLimitExceeded):
	case err != nil:
		g.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
		return nil
	case result != nil && result.Allowed:
		return nil
	}

	g.log.Warn("rate limit exceeded", slog.String("key", key))
	return apperrors.NewRateLimitError(retrySeconds(result.RetryAfter(g.now())))
}

func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
