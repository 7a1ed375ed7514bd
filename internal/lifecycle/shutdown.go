package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Shutdown runs the registered hooks phase by phase.
type Shutdown struct {
	mu    sync.Mutex
	hooks []Hook
	log   *slog.Logger
}

func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}
	return &Shutdown{log: log}
}

// Register adds a hook to PhaseIngress.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	s.RegisterPhase(PhaseIngress, name, fn)
}

func (s *Shutdown) RegisterPhase(phase Phase, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, Hook{Name: name, Phase: phase, Fn: fn})
	s.mu.Unlock()
}

// Execute runs every phase even when an earlier one failed or ctx expired,
// so connections are still closed. All hook errors are joined.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Phase < hooks[j].Phase })

	started := time.Now()
	s.log.Info("shutdown started", slog.Int("hooks", len(hooks)))

	var errs []error
	for start := 0; start < len(hooks); {
		end := start
		for end < len(hooks) && hooks[end].Phase == hooks[start].Phase {
			end++
		}
		errs = append(errs, s.runPhase(ctx, hooks[start:end])...)
		start = end
	}

	s.log.Info("shutdown finished", slog.Duration("elapsed", time.Since(started)), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (s *Shutdown) runPhase(ctx context.Context, hooks []Hook) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	phase := hooks[0].Phase.String()
	for _, h := range hooks {
		wg.Add(1)
		go func(h Hook) {
			defer wg.Done()

			began := time.Now()
			err := h.Fn(ctx)
			if err != nil {
				s.log.Error("shutdown hook failed", slog.String("phase", phase), slog.String("hook", h.Name), slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				mu.Unlock()
				return
			}
			s.log.Debug("shutdown hook done", slog.String("phase", phase), slog.String("hook", h.Name), slog.Duration("elapsed", time.Since(began)))
		}(h)
	}

	wg.Wait()
	return errs
}
