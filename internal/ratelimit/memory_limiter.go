package ratelimit

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// hits holds admitted timestamps for one key, oldest first.
type hits []time.Time

// prune drops timestamps at or before cutoff.
func (h hits) prune(cutoff time.Time) hits {
	i, _ := slices.BinarySearchFunc(h, cutoff, func(t, c time.Time) int {
		if t.After(c) {
			return 1
		}
		return -1
	})
	return slices.Delete(h, 0, i)
}

func (h hits) last() time.Time {
	if len(h) == 0 {
		return time.Time{}
	}
	return h[len(h)-1]
}

// MemoryLimiter is the process-local sliding window. It serves alone when
// Redis is disabled and as the fallback behind the adaptive limiter.
type MemoryLimiter struct {
	mu   sync.Mutex
	keys map[string]hits
	now  func() time.Time
	log  *slog.Logger
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryLimiter{keys: make(map[string]hits), now: time.Now, log: log}
}

// Check admits the call when fewer than limit calls were admitted for key in
// the trailing window. Rejected calls are not recorded.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.keys[key].prune(now.Add(-window))
	allowed := len(h) < limit
	if allowed {
		h = append(h, now)
	}
	m.keys[key] = h

	res := &Result{
		Allowed:   allowed,
		Remaining: max(limit-len(h), 0),
		ResetAt:   now.Add(window),
	}
	if len(h) > 0 {
		res.ResetAt = h[0].Add(window)
	}
	if !allowed {
		return res, ErrLimitExceeded
	}
	return res, nil
}

// Cleanup forgets keys idle for longer than maxAge and reports how many went.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.keys)
	for key, h := range m.keys {
		if h.last().Before(cutoff) {
			delete(m.keys, key)
		}
	}
	return before - len(m.keys)
}

// Len is the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
