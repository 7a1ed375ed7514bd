// Package idempotency makes node control requests safe to retry: a request
// carrying the same key runs once and later copies replay the stored response.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

const (
	lockTTL      = 5 * time.Minute
	pollInterval = 100 * time.Millisecond
)

type Operation func(ctx context.Context) (interface{}, error)

// Result is the JSON response of an operation, fresh or replayed.
type Result struct {
	Response  json.RawMessage
	FromCache bool
}

// Decode unmarshals the stored response into v. An empty response is a no-op.
func (r *Result) Decode(v interface{}) error {
	if r == nil || len(r.Response) == 0 {
		return nil
	}
	return json.Unmarshal(r.Response, v)
}

type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store Store
	log   *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}
	return &manager{store: store, log: log}
}

// Execute runs fn at most once per key within ttl. Duplicates that arrive while
// the first call runs get ErrRequestInProgress. A failing fn leaves no record,
// so the caller may retry with the same key.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("idempotency: nil operation")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var wait *time.Ticker
	for {
		owned, err := m.store.Lock(ctx, key, lockTTL)
		if err != nil {
			return nil, err
		}
		if owned {
			return m.runLocked(ctx, key, ttl, fn)
		}

		res, err := m.peek(ctx, key)
		if res != nil || err != nil {
			return res, err
		}

		// The holder locked but has not written its marker yet.
		if wait == nil {
			wait = time.NewTicker(pollInterval)
			defer wait.Stop()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait.C:
		}
	}
}

// peek inspects the record behind a lock held by someone else. Both return
// values are nil when there is nothing to decide on yet.
func (m *manager) peek(ctx context.Context, key string) (*Result, error) {
	rec, err := m.store.Get(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	switch rec.Status {
	case StatusProcessing:
		return nil, ErrRequestInProgress
	case StatusCompleted:
		m.log.DebugContext(ctx, "idempotent replay", slog.String("key", key))
		return &Result{Response: rec.Response, FromCache: true}, nil
	}
	return nil, nil
}

func (m *manager) runLocked(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	detached := context.WithoutCancel(ctx)
	defer func() {
		if err := m.store.ReleaseLock(detached, key); err != nil {
			m.log.WarnContext(ctx, "failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, lockTTL); err != nil {
		return nil, err
	}

	out, err := fn(ctx)
	if err != nil {
		if derr := m.store.Delete(detached, key); derr != nil {
			m.log.WarnContext(ctx, "failed to drop idempotency marker", slog.String("key", key), slog.Any("error", derr))
		}
		return nil, err
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: body}, ttl); err != nil {
		return nil, err
	}
	return &Result{Response: body}, nil
}
