package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/ratelimit"
)

// RateLimit enforces the per-client rule and, when command is set, the
// command rule for HTTP callers keyed by remote address.
func RateLimit(guard *ratelimit.Guard, command string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if guard == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := guard.Allow(r.Context(), "ip:"+ClientIP(r), 0, command)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			if appErr, ok := apperrors.As(err); ok && appErr.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
			}
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		})
	}
}

// ExemptFunc reports whether an update skips rate limiting.
type ExemptFunc func(c telebot.Context) bool

// RateLimitMiddleware enforces per-user rate limits for incoming Telegram updates.
type RateLimitMiddleware struct {
	guard    *ratelimit.Guard
	commands map[string]string
	exempt   ExemptFunc
	log      *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
// commands maps bot commands or callback uniques to a command rule name.
func NewRateLimitMiddleware(guard *ratelimit.Guard, commands map[string]string, exempt ExemptFunc, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		guard:    guard,
		commands: commands,
		exempt:   exempt,
		log:      log,
	}
}

// Handle returns a telebot middleware. A rejected update gets the error back
// so the bot's error handler can answer in the user's language.
func (m *RateLimitMiddleware) Handle(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if m == nil || m.guard == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil {
			return next(c)
		}

		if m.exempt != nil && m.exempt(c) {
			return next(c)
		}

		subject := fmt.Sprintf("user:%d", sender.ID)
		if err := m.guard.Allow(context.Background(), subject, sender.ID, m.commands[CommandName(c)]); err != nil {
			m.log.Debug("update rejected by rate limit", slog.Int64("user_id", sender.ID))
			return err
		}

		return next(c)
	}
}
