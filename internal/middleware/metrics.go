package middleware

import (
	"net/http"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

// HTTPMetrics records request count and latency per route template.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := wrap(w)

		next.ServeHTTP(rec, r)

		metrics.RecordHTTPRequest(r.Method, routeName(r), rec.code(), time.Since(start))
	})
}

// Metrics measures execution time and status for bot handlers.
func Metrics(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(CommandName(c), status, time.Since(start))

		return err
	}
}

// CommandName labels an update by its command or callback unique without any
// arguments, so free text such as a password never reaches a metric label.
func CommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		if unique := strings.TrimSpace(strings.TrimPrefix(cb.Unique, "\f")); unique != "" {
			return "callback:" + unique
		}
		data := strings.TrimPrefix(cb.Data, "\f")
		if prefix, _, _ := strings.Cut(data, "|"); prefix != "" {
			return "callback:" + prefix
		}
		return "callback"
	}

	text := strings.TrimSpace(c.Text())
	if !strings.HasPrefix(text, "/") {
		if text == "" {
			return "unknown"
		}
		return "text"
	}

	cmd, _, _ := strings.Cut(text, " ")
	// "/status@juno_bot" in groups
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}
