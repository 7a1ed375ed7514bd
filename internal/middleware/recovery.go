package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
)

// Recovery turns a handler panic into a 500 and reports it through errHandler.
func Recovery(log *slog.Logger, errHandler *apperrors.Handler) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error("panic recovered in http handler",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)

				msg := "internal error"
				if errHandler != nil {
					msg, _ = errHandler.Handle(r.Context(), apperrors.NewInternalError(fmt.Errorf("panic: %v", rec)))
				}
				WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
