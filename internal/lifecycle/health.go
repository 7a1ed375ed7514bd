package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrDraining fails readiness once shutdown has started.
var ErrDraining = errors.New("shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// ReadinessSource reports component statuses and whether critical ones are up.
type ReadinessSource interface {
	Ready(ctx context.Context) (map[string]string, error)
}

// Probes backs /healthz and /readyz.
type Probes struct {
	source   ReadinessSource
	draining atomic.Bool
	log      *slog.Logger
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates a new Probes instance. A nil source is always ready.
func NewProbes(source ReadinessSource, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{source: source, log: log}
}

// Liveness reports whether the process is serving at all.
func (p *Probes) Liveness(ctx context.Context) error {
	p.log.Debug("liveness probe called")
	return nil
}

// Readiness fails while draining or when a critical component is down.
func (p *Probes) Readiness(ctx context.Context) error {
	_, err := p.Components(ctx)
	return err
}

// Components returns per-component statuses along with the readiness verdict.
func (p *Probes) Components(ctx context.Context) (map[string]string, error) {
	if p.draining.Load() {
		return nil, ErrDraining
	}
	if p.source == nil {
		return map[string]string{}, nil
	}
	return p.source.Ready(ctx)
}

// SetDraining makes readiness fail so load balancers stop routing here.
func (p *Probes) SetDraining() {
	if !p.draining.Swap(true) {
		p.log.Info("readiness set to draining")
	}
}
