package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/NoaSEED/juno-starknet-node-setup/pkg/logger"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

// Handler is the single place where errors reaching a user are logged,
// counted and, when severe, sent to Sentry.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, sentryEnabled: sentryEnabled}
}

// classified is what Handle needs to know about any error.
type classified struct {
	code        string
	severity    Severity
	retryable   bool
	userMessage string
	known       bool
}

func classify(err error) classified {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr == nil {
		return classified{code: "unknown", severity: SeverityHigh, userMessage: defaultUserMessage}
	}

	c := classified{
		code:        appErr.Code,
		severity:    appErr.Severity,
		retryable:   appErr.Retryable,
		userMessage: appErr.UserMessage,
		known:       true,
	}
	if c.userMessage == "" {
		c.userMessage = defaultUserMessage
	}
	return c
}

// Handle returns the Spanish message to show and whether the user may retry.
// Unknown errors are always reported to Sentry; AppErrors only from high
// severity up.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := classify(err)
	metrics.RecordError(c.code, string(c.severity))

	args := []any{
		slog.String("code", c.code),
		slog.String("severity", string(c.severity)),
		slog.Bool("retryable", c.retryable),
		slog.Any("error", err),
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		args = append(args, slog.String("correlation_id", id))
	}

	msg := "application error"
	if !c.known {
		msg = "unknown error"
	}
	h.log.Log(ctx, levelFor(c.severity), msg, args...)

	if h.sentryEnabled && (!c.known || c.severity == SeverityCritical || c.severity == SeverityHigh) {
		capture(err, c)
	}

	return c.userMessage, c.retryable
}

// Low-severity errors are expected traffic (bad input, wrong password) and are logged at warn.
func levelFor(severity Severity) slog.Level {
	if severity == SeverityLow {
		return slog.LevelWarn
	}
	return slog.LevelError
}

func capture(err error, c classified) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("code", c.code)
		scope.SetTag("severity", string(c.severity))
		sentry.CaptureException(err)
	})
}
