package errors

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Handle(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		wantMessage   string
		wantRetryable bool
		wantLevel     string
	}{
		{
			name:          "auth error is retryable and logged at warn",
			err:           NewAuthError(),
			wantMessage:   "Usuario o contraseña incorrectos",
			wantRetryable: true,
			wantLevel:     "WARN",
		},
		{
			name:          "wrapped storage error",
			err:           fmt.Errorf("login: %w", NewStorageError(stderrors.New("disk full"))),
			wantMessage:   "Problema temporal, intentá más tarde",
			wantRetryable: true,
			wantLevel:     "ERROR",
		},
		{
			name:          "unknown error",
			err:           stderrors.New("boom"),
			wantMessage:   defaultUserMessage,
			wantRetryable: false,
			wantLevel:     "ERROR",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := NewHandler(slog.New(slog.NewTextHandler(&buf, nil)), false)

			msg, retryable := h.Handle(context.Background(), tc.err)
			assert.Equal(t, tc.wantMessage, msg)
			assert.Equal(t, tc.wantRetryable, retryable)
			assert.Contains(t, buf.String(), "level="+tc.wantLevel)
		})
	}

	t.Run("nil error", func(t *testing.T) {
		msg, retryable := NewHandler(nil, false).Handle(context.Background(), nil)
		assert.Empty(t, msg)
		assert.False(t, retryable)
	})
}

func TestAs(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := fmt.Errorf("status: %w", NewUpstreamError("juno-rpc", cause))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeUpstream, appErr.Code)
	assert.ErrorIs(t, err, cause)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestWithRetry(t *testing.T) {
	t.Run("retries retryable errors until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 2 {
				return NewStorageError(stderrors.New("transient"))
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return NewValidationError("bad")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honours cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			cancel()
			return NewStorageError(nil)
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryPolicy_Attempts(t *testing.T) {
	testCases := []struct {
		name      string
		attempts  int
		wantCalls int
	}{
		{name: "zero means one attempt", attempts: 0, wantCalls: 1},
		{name: "gives up after the limit", attempts: 3, wantCalls: 3},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			p := RetryPolicy{Attempts: tc.attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
			calls := 0
			err := p.Do(context.Background(), func() error {
				calls++
				return NewStorageError(stderrors.New("redis down"))
			})
			assert.Error(t, err)
			assert.Equal(t, tc.wantCalls, calls)
		})
	}

	p := RetryPolicy{Initial: time.Second, Max: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, 2*time.Second, p.next(time.Second))
	assert.Equal(t, 3*time.Second, p.next(2*time.Second))
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(WithMinRequests(2), WithOpenTimeout(time.Second))
	cb.now = func() time.Time { return now }

	failure := stderrors.New("down")
	assert.ErrorIs(t, cb.Call(func() error { return failure }), failure)
	assert.ErrorIs(t, cb.Call(func() error { return failure }), failure)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	assert.ErrorIs(t, cb.Call(func() error { called = true; return nil }), ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Second)
	for i := 0; i < HalfOpenMaxRequests; i++ {
		assert.NoError(t, cb.Call(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(WithMinRequests(1), WithOpenTimeout(time.Second))
	cb.now = func() time.Time { return now }

	failure := stderrors.New("down")
	_ = cb.Call(func() error { return failure })
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.ErrorIs(t, cb.Call(func() error { return failure }), failure)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_CallContext(t *testing.T) {
	cb := NewCircuitBreaker(WithMinRequests(1))
	failure := stderrors.New("down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	assert.ErrorIs(t, cb.CallContext(ctx, func() error { called = true; return nil }), context.Canceled)
	assert.False(t, called, "ended context is rejected before fn runs")

	ctx, cancel = context.WithCancel(context.Background())
	assert.ErrorIs(t, cb.CallContext(ctx, func() error { cancel(); return failure }), failure)
	assert.Equal(t, StateClosed, cb.State(), "failure after cancellation is not counted")

	assert.ErrorIs(t, cb.CallContext(context.Background(), func() error { return failure }), failure)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IntervalResetsCounts(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(WithMinRequests(4), WithInterval(time.Minute))
	cb.now = func() time.Time { return now }
	cb.countsSince = now

	failure := stderrors.New("down")
	for i := 0; i < 3; i++ {
		_ = cb.Call(func() error { return failure })
	}
	now = now.Add(2 * time.Minute)
	_ = cb.Call(func() error { return failure })
	assert.Equal(t, StateClosed, cb.State(), "old failures expired with the interval")

	for i := 0; i < 3; i++ {
		_ = cb.Call(func() error { return failure })
	}
	assert.Equal(t, StateOpen, cb.State())
}
