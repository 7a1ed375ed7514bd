// Package monitor keeps the latest JUNO node snapshot, refreshed on a schedule
// or on demand, and fans committed snapshots out to subscribers.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

// DefaultInterval is the refresh period used by Activate.
const DefaultInterval = 10 * time.Second

const (
	sourceNodeStatus = "node_status"
	sourceNetwork    = "net_info"
	sourceSystem     = "system"
)

type Option func(*Poller)

// WithSystemSource attaches a host metrics source. Without one the system
// fields always carry PlaceholderSystemInfo.
func WithSystemSource(s SystemSource) Option {
	return func(p *Poller) {
		p.system = s
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock overrides the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// Poller owns a single Snapshot. Writes happen only when a refresh resolves
// and are serialized by mu; overlapping refreshes are last-writer-wins.
type Poller struct {
	source   Source
	system   SystemSource
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	snapshot Snapshot

	inFlight atomic.Int32
	batch    atomic.Uint64

	subMu   sync.Mutex
	subs    map[uint64]chan Snapshot
	nextSub uint64
}

func New(source Source, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		interval: DefaultInterval,
		log:      slog.Default(),
		now:      time.Now,
		snapshot: Snapshot{State: StateChecking},
		subs:     make(map[uint64]chan Snapshot),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// fetchResult holds what one refresh gathered. A nil pointer with a false
// fallback flag means the source answered with nothing.
type fetchResult struct {
	status       *NodeStatus
	network      *NetworkInfo
	system       *SystemInfo
	statusFailed bool
	netFailed    bool
}

// Refresh fetches node status and network info concurrently, merges them and
// commits the result if ctx is still live. It always returns a snapshot.
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	started := time.Now()
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	batch := p.batch.Add(1)
	res := p.fetch(ctx)
	snap := p.merge(res, batch)

	if ctx.Err() != nil {
		p.log.Debug("refresh discarded", slog.Uint64("batch", batch), slog.Any("error", ctx.Err()))
		metrics.RecordRefresh("discarded", time.Since(started))
		return snap
	}

	p.commit(snap)
	metrics.RecordRefresh(string(snap.State), time.Since(started))
	return snap
}

// ManualRefresh is an on-demand Refresh. It is safe to call while other
// refreshes are in flight.
func (p *Poller) ManualRefresh(ctx context.Context) Snapshot {
	return p.Refresh(ctx)
}

func (p *Poller) fetch(ctx context.Context) fetchResult {
	var (
		res fetchResult
		g   errgroup.Group
	)

	g.Go(func() error {
		st, err := guard(func() (*NodeStatus, error) { return p.source.NodeStatus(ctx) })
		if err != nil {
			p.fallback(sourceNodeStatus, err)
			ph := PlaceholderNodeStatus
			res.status, res.statusFailed = &ph, true
			return nil
		}
		res.status = st
		return nil
	})

	g.Go(func() error {
		info, err := guard(func() (*NetworkInfo, error) { return p.source.NetworkInfo(ctx) })
		if err != nil {
			p.fallback(sourceNetwork, err)
			ph := PlaceholderNetworkInfo
			res.network, res.netFailed = &ph, true
			return nil
		}
		res.network = info
		return nil
	})

	g.Go(func() error {
		ph := PlaceholderSystemInfo
		if p.system == nil {
			res.system = &ph
			return nil
		}
		info, err := guard(func() (*SystemInfo, error) { return p.system.SystemInfo(ctx) })
		if err != nil || info == nil {
			p.fallback(sourceSystem, err)
			res.system = &ph
			return nil
		}
		res.system = info
		return nil
	})

	// Fetch errors are absorbed into placeholders above.
	_ = g.Wait()
	return res
}

func (p *Poller) fallback(source string, err error) {
	metrics.RecordFallback(source)
	p.log.Debug("using placeholder", slog.String("source", source), slog.Any("error", err))
}

// merge builds the snapshot for one batch. Both node sources failing means the
// node is unreachable. Any panic while merging yields an offline snapshot.
func (p *Poller) merge(res fetchResult, batch uint64) (snap Snapshot) {
	previous := p.LastUpdate()

	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("merge failed, marking node offline", slog.Uint64("batch", batch), slog.Any("panic", r))
			snap = offline(previous, batch)
		}
	}()

	if res.statusFailed && res.netFailed {
		return offline(previous, batch)
	}

	nodeInfo := res.status.NodeInfo
	syncInfo := res.status.SyncInfo
	network := *res.network
	system := *res.system
	now := p.now()

	return Snapshot{
		State:       StateOnline,
		NodeInfo:    &nodeInfo,
		SyncInfo:    &syncInfo,
		NetworkInfo: &network,
		SystemInfo:  &system,
		LastUpdate:  &now,
		Degraded:    res.statusFailed || res.netFailed,
		Batch:       batch,
	}
}

func offline(lastUpdate *time.Time, batch uint64) Snapshot {
	return Snapshot{State: StateOffline, LastUpdate: lastUpdate, Batch: batch}
}

// commit stores snap and fans it out inside one critical section, so the
// last value every subscriber receives is the one Snapshot returns.
// Lock order is mu, then subMu.
func (p *Poller) commit(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snapshot = snap.clone()

	peers := 0
	if snap.NetworkInfo != nil {
		peers = snap.NetworkInfo.PeerCount
	}
	metrics.SetNodeStatus(snap.State == StateOnline, peers)

	p.broadcast(snap)
}

// Snapshot returns a copy of the last committed snapshot.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.clone()
}

// Loading reports whether any refresh is in flight.
func (p *Poller) Loading() bool {
	return p.inFlight.Load() > 0
}

func (p *Poller) LastUpdate() *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot.LastUpdate == nil {
		return nil
	}
	t := *p.snapshot.LastUpdate
	return &t
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Subscribe delivers every committed snapshot. Slow readers only see the
// latest one. The cancel func closes the channel.
func (p *Poller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
			close(ch)
		})
	}
}

func (p *Poller) broadcast(snap Snapshot) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	for _, ch := range p.subs {
		select {
		case ch <- snap.clone():
			continue
		default:
		}
		// drop the stale value so the newest one fits
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap.clone():
		default:
		}
	}
}

// Activation is the handle of a running schedule.
type Activation struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Activate refreshes immediately and then every interval until Stop or ctx
// cancellation.
func (p *Poller) Activate(ctx context.Context) *Activation {
	ctx, cancel := context.WithCancel(ctx)
	a := &Activation{cancel: cancel, done: make(chan struct{})}

	go p.run(ctx, a.done)
	return a
}

func (p *Poller) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	p.log.Info("status poller started", slog.Duration("interval", p.interval))
	defer p.log.Info("status poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Refresh(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the schedule, aborting in-flight scheduled fetches, and waits
// for the loop to exit. It is safe to call more than once.
func (a *Activation) Stop() {
	a.once.Do(a.cancel)
	<-a.done
}

// Done is closed once the loop has exited.
func (a *Activation) Done() <-chan struct{} {
	return a.done
}

// guard turns a panicking source into an error so one bad fetch cannot take
// the process down.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source panic: %v", r)
		}
	}()
	return fn()
}
