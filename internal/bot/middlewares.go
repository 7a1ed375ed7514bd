package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/handlers"
	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
)

// TranslatorFunc picks the language for an update.
type TranslatorFunc func(c telebot.Context) i18n.Translator

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler, tr TranslatorFunc) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

				if errHandler != nil {
					errHandler.Handle(context.Background(), apperrors.NewInternalError(fmt.Errorf("panic recovered: %v", r)))
				}

				if c != nil {
					if sendErr := c.Send(tr(c).T("common.error")); sendErr != nil {
						log.Error("failed to notify user about panic", slog.Any("error", sendErr))
					}
				}

				err = nil
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware reports handler failures and answers the user in
// their language. Errors do not propagate to telebot.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler, tr TranslatorFunc) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if errHandler != nil {
				errHandler.Handle(context.Background(), err)
			}

			if c != nil {
				_ = c.Send(UserMessage(tr(c), err))
			}

			return nil
		}
	}
}

// UserMessage is the localized reply for err.
func UserMessage(t i18n.Translator, err error) string {
	appErr, ok := apperrors.As(err)
	if !ok {
		return t.T("common.error")
	}

	switch appErr.Code {
	case apperrors.CodeUnauthenticated:
		return t.T("common.unauthenticated")
	case apperrors.CodeState:
		return t.T("common.state_conflict")
	case apperrors.CodeRateLimit:
		return t.Tf("common.rate_limited", fmt.Sprintf("%ds", max(appErr.RetryAfter, 1)))
	default:
		return t.T("common.error")
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates. Only the
// command name is logged because free text may be a password.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			start := time.Now()
			userID := int64(0)
			if c != nil && c.Sender() != nil {
				userID = c.Sender().ID
			}
			action := middleware.CommandName(c)

			log.Debug("handling update", slog.Int64("user_id", userID), slog.String("action", action))
			err := next(c)
			log.Info("handled update",
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}
