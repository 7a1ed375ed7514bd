package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "ip:1", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 2-i, result.Remaining)
	}

	result, err := limiter.Check(ctx, "ip:1", 3, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Minute, result.RetryAfter(now))

	_, err = limiter.Check(ctx, "ip:2", 3, time.Minute)
	assert.NoError(t, err, "keys are independent")

	now = now.Add(61 * time.Second)
	result, err = limiter.Check(ctx, "ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Check(context.Background(), "old", 5, time.Minute)
	now = now.Add(10 * time.Minute)
	_, _ = limiter.Check(context.Background(), "fresh", 5, time.Minute)

	assert.Equal(t, 0, limiter.Cleanup(0))
	assert.Equal(t, 1, limiter.Cleanup(5*time.Minute))
	assert.Equal(t, 1, limiter.Len())
}

type countingSweeper struct {
	calls chan time.Duration
}

func (s countingSweeper) Cleanup(maxAge time.Duration) int {
	s.calls <- maxAge
	return 1
}

func TestCleaner_Run(t *testing.T) {
	sweeper := countingSweeper{calls: make(chan time.Duration, 4)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewCleaner(sweeper, 5*time.Millisecond, time.Hour, testLogger()).Run(ctx)
		close(done)
	}()

	select {
	case maxAge := <-sweeper.calls:
		assert.Equal(t, time.Hour, maxAge)
	case <-time.After(time.Second):
		t.Fatal("cleaner never swept")
	}

	cancel()
	<-done
}

func TestHits_Prune(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

	testCases := []struct {
		name   string
		in     hits
		cutoff time.Time
		want   int
	}{
		{name: "empty", in: nil, cutoff: at(5), want: 0},
		{name: "all recent", in: hits{at(6), at(7)}, cutoff: at(5), want: 2},
		{name: "boundary is expired", in: hits{at(4), at(5), at(6)}, cutoff: at(5), want: 1},
		{name: "all expired", in: hits{at(1), at(2)}, cutoff: at(5), want: 0},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, tc.in.prune(tc.cutoff), tc.want)
		})
	}
}
