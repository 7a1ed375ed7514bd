package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/idempotency"
)

// IdempotencyKeyHeader carries the client's retry key.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

type capturedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// errUnsuccessful keeps non-2xx responses out of the store so the client may
// retry them.
var errUnsuccessful = errors.New("unsuccessful response")

type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. scope returns the caller identity the key is bound to.
// Requests without the header pass straight through.
func Idempotency(manager idempotency.Manager, scope func(*http.Request) string, ttl time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if scope == nil {
		scope = ClientIP
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "idempotency key too long"})
				return
			}

			key := idempotency.GenerateKey(scope(r), r.Method, routeName(r), clientKey)

			var fresh *capturedResponse
			result, err := manager.Execute(r.Context(), key, ttl, func(ctx context.Context) (interface{}, error) {
				buf := &bufferedWriter{header: make(http.Header)}
				next.ServeHTTP(buf, r.WithContext(ctx))

				fresh = &capturedResponse{
					Status:      buf.status,
					ContentType: buf.header.Get("Content-Type"),
					Body:        buf.body.Bytes(),
				}
				if fresh.Status == 0 {
					fresh.Status = http.StatusOK
				}
				for k, v := range buf.header {
					w.Header()[k] = v
				}
				if fresh.Status >= 300 {
					return nil, errUnsuccessful
				}
				return fresh, nil
			})

			switch {
			case errors.Is(err, idempotency.ErrRequestInProgress):
				WriteJSON(w, http.StatusConflict, map[string]string{"error": "request already in progress"})
				return
			case errors.Is(err, errUnsuccessful), err == nil && !result.FromCache:
				writeCaptured(w, fresh)
				return
			case err != nil:
				log.ErrorContext(r.Context(), "idempotent request failed", slog.Any("error", err))
				if fresh != nil {
					writeCaptured(w, fresh)
					return
				}
				WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}

			var replay capturedResponse
			if err := result.Decode(&replay); err != nil || replay.Status == 0 {
				log.ErrorContext(r.Context(), "corrupt idempotency record", slog.Any("error", err))
				WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeCaptured(w, &replay)
		})
	}
}

func writeCaptured(w http.ResponseWriter, resp *capturedResponse) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// UpdateDedupe ensures bot handlers execute at most once per Telegram update,
// so a redelivered webhook or a double-tapped button does not run twice.
func UpdateDedupe(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) telebot.MiddlewareFunc {
	if manager == nil {
		return func(next telebot.HandlerFunc) telebot.HandlerFunc {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			key := updateKey(c)
			if key == "" {
				return next(c)
			}

			_, err := manager.Execute(context.Background(), key, ttl, func(context.Context) (interface{}, error) {
				return nil, next(c)
			})
			if errors.Is(err, idempotency.ErrRequestInProgress) {
				log.Debug("duplicate update dropped", slog.String("key", key))
				return nil
			}

			return err
		}
	}
}

func updateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil {
		if cb.ID != "" {
			return fmt.Sprintf("tg:cb:%s", cb.ID)
		}

		if cb.Message != nil {
			chatID := int64(0)
			if cb.Message.Chat != nil {
				chatID = cb.Message.Chat.ID
			}
			return fmt.Sprintf("tg:cb-msg:%d:%d", chatID, cb.Message.ID)
		}
	}

	if msg := c.Message(); msg != nil {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		if msg.ID != 0 {
			return fmt.Sprintf("tg:msg:%d:%d", chatID, msg.ID)
		}
	}

	return ""
}
