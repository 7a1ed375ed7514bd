// Package health aggregates component health checks for the readiness probe.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/telebot.v3"
)

const statusOK = "OK"

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

type registered struct {
	check    Checkable
	critical bool
}

// Checker aggregates health checks for multiple components. Only critical
// components fail readiness; the node being offline is a normal state for a
// monitoring dashboard.
type Checker struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]registered
}

// NewChecker instantiates a Checker with the provided logger.
func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		log:     log,
		timeout: 3 * time.Second,
		checks:  make(map[string]registered),
	}
}

// AddCheck registers a critical component by name.
func (c *Checker) AddCheck(name string, check Checkable) {
	c.add(name, check, true)
}

// AddOptionalCheck registers a component that is reported but never fails readiness.
func (c *Checker) AddOptionalCheck(name string, check Checkable) {
	c.add(name, check, false)
}

func (c *Checker) add(name string, check Checkable, critical bool) {
	if name == "" || check == nil {
		return
	}
	c.mu.Lock()
	c.checks[name] = registered{check: check, critical: critical}
	c.mu.Unlock()
}

// Check runs all registered health checks concurrently and returns their statuses.
func (c *Checker) Check(ctx context.Context) map[string]string {
	statuses, _ := c.run(ctx)
	return statuses
}

// Ready is Check plus an error naming every failed critical component.
func (c *Checker) Ready(ctx context.Context) (map[string]string, error) {
	return c.run(ctx)
}

func (c *Checker) run(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	checks := make(map[string]registered, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		results  = make(map[string]string, len(checks))
		failures []string
	)

	for name, r := range checks {
		wg.Add(1)
		go func(name string, r registered) {
			defer wg.Done()

			err := r.check.HealthCheck(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				results[name] = statusOK
				return
			}
			results[name] = err.Error()
			if r.critical {
				failures = append(failures, name)
				c.log.Error("health check failed", slog.String("component", name), slog.Any("error", err))
			} else {
				c.log.Warn("optional health check failed", slog.String("component", name), slog.Any("error", err))
			}
		}(name, r)
	}
	wg.Wait()

	if len(failures) > 0 {
		sort.Strings(failures)
		return results, fmt.Errorf("unhealthy components: %v", failures)
	}
	return results, nil
}

// Pinger abstracts the subset of redis.Client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}

// TelegramChecker verifies that the Telegram bot is initialized.
type TelegramChecker struct {
	bot *telebot.Bot
}

// NewTelegramChecker constructs a TelegramChecker.
func NewTelegramChecker(bot *telebot.Bot) *TelegramChecker {
	return &TelegramChecker{bot: bot}
}

// HealthCheck ensures the underlying bot is initialized.
func (c *TelegramChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.bot == nil || c.bot.Me == nil {
		return errors.New("telegram bot is not initialized or disconnected")
	}
	return nil
}
