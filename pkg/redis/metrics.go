package redis

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
)

// Outcome labels. A miss is a redis.Nil reply.
const (
	outcomeOK    = "ok"
	outcomeMiss  = "miss"
	outcomeError = "error"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "galicia",
		Subsystem: "redis",
		Name:      "commands_total",
		Help:      "Redis commands issued by the dashboard, by command and outcome.",
	}, []string{"command", "outcome"})

	commandSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "galicia",
		Subsystem: "redis",
		Name:      "command_duration_seconds",
		Help:      "Redis command latency.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"command"})
)

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, goredis.Nil):
		return outcomeMiss
	default:
		return outcomeError
	}
}

func instrument(command string, fn func() error) error {
	start := time.Now()
	err := fn()
	commandSeconds.WithLabelValues(command).Observe(time.Since(start).Seconds())
	commandsTotal.WithLabelValues(command, outcome(err)).Inc()
	return err
}

// MetricsClient records every call it forwards to the wrapped Client.
type MetricsClient struct {
	inner *Client
}

func NewMetricsClient(inner *Client) *MetricsClient {
	return &MetricsClient{inner: inner}
}

func (m *MetricsClient) Get(ctx context.Context, key string) (value string, err error) {
	err = instrument("get", func() error {
		value, err = m.inner.Get(ctx, key)
		return err
	})
	return value, err
}

func (m *MetricsClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return instrument("set", func() error { return m.inner.Set(ctx, key, value, ttl) })
}

func (m *MetricsClient) Delete(ctx context.Context, key string) error {
	return instrument("del", func() error { return m.inner.Delete(ctx, key) })
}

func (m *MetricsClient) HealthCheck(ctx context.Context) error {
	return instrument("ping", func() error { return m.inner.HealthCheck(ctx) })
}

// Close is not instrumented.
func (m *MetricsClient) Close() error {
	return m.inner.Close()
}

// Raw exposes the wrapped client for commands beyond Get, Set and Delete.
func (m *MetricsClient) Raw() *Client {
	return m.inner
}
