package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

type fakeSource struct {
	status  func(ctx context.Context) (*NodeStatus, error)
	network func(ctx context.Context) (*NetworkInfo, error)
	calls   atomic.Int32
}

func (f *fakeSource) NodeStatus(ctx context.Context) (*NodeStatus, error) {
	f.calls.Add(1)
	return f.status(ctx)
}

func (f *fakeSource) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	return f.network(ctx)
}

type fakeSystem struct {
	info *SystemInfo
	err  error
}

func (f fakeSystem) SystemInfo(context.Context) (*SystemInfo, error) {
	return f.info, f.err
}

func liveSource() *fakeSource {
	return &fakeSource{
		status: func(context.Context) (*NodeStatus, error) {
			return &NodeStatus{
				NodeInfo: NodeInfo{Moniker: "galicia-juno", ID: "f00d"},
				SyncInfo: SyncInfo{LatestBlockHeight: "42", CatchingUp: true},
			}, nil
		},
		network: func(context.Context) (*NetworkInfo, error) {
			return &NetworkInfo{PeerCount: 7}, nil
		},
	}
}

func deadSource() *fakeSource {
	return &fakeSource{
		status:  func(context.Context) (*NodeStatus, error) { return nil, errDown },
		network: func(context.Context) (*NetworkInfo, error) { return nil, errDown },
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoller_InitialSnapshot(t *testing.T) {
	p := New(liveSource(), WithLogger(quietLogger()))

	assert.Equal(t, StateChecking, p.Snapshot().State)
	assert.Nil(t, p.LastUpdate())
	assert.False(t, p.Loading())
	assert.Equal(t, DefaultInterval, p.Interval())
}

func TestPoller_Refresh(t *testing.T) {
	testCases := []struct {
		name         string
		source       *fakeSource
		wantState    NodeState
		wantDegraded bool
		wantMoniker  string
		wantPeers    int
	}{
		{
			name:        "both sources live",
			source:      liveSource(),
			wantState:   StateOnline,
			wantMoniker: "galicia-juno",
			wantPeers:   7,
		},
		{
			name: "status falls back",
			source: &fakeSource{
				status:  func(context.Context) (*NodeStatus, error) { return nil, errDown },
				network: liveSource().network,
			},
			wantState:    StateOnline,
			wantDegraded: true,
			wantMoniker:  PlaceholderNodeStatus.NodeInfo.Moniker,
			wantPeers:    7,
		},
		{
			name: "network falls back",
			source: &fakeSource{
				status:  liveSource().status,
				network: func(context.Context) (*NetworkInfo, error) { return nil, errDown },
			},
			wantState:    StateOnline,
			wantDegraded: true,
			wantMoniker:  "galicia-juno",
			wantPeers:    PlaceholderNetworkInfo.PeerCount,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			before := time.Now()
			p := New(tc.source, WithLogger(quietLogger()))

			snap := p.Refresh(context.Background())

			assert.Equal(t, tc.wantState, snap.State)
			assert.Equal(t, tc.wantDegraded, snap.Degraded)
			require.NotNil(t, snap.NodeInfo)
			require.NotNil(t, snap.SyncInfo)
			require.NotNil(t, snap.NetworkInfo)
			require.NotNil(t, snap.SystemInfo)
			assert.Equal(t, tc.wantMoniker, snap.NodeInfo.Moniker)
			assert.Equal(t, tc.wantPeers, snap.NetworkInfo.PeerCount)
			assert.Equal(t, PlaceholderSystemInfo, *snap.SystemInfo)

			require.NotNil(t, snap.LastUpdate)
			assert.False(t, snap.LastUpdate.Before(before))
			assert.Equal(t, snap, p.Snapshot())
		})
	}
}

func TestPoller_LastUpdateAdvances(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := New(liveSource(), WithLogger(quietLogger()), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	first := p.Refresh(context.Background())
	second := p.Refresh(context.Background())

	require.NotNil(t, first.LastUpdate)
	require.NotNil(t, second.LastUpdate)
	assert.True(t, second.LastUpdate.After(*first.LastUpdate))
	assert.Greater(t, second.Batch, first.Batch)
}

func TestPoller_BothSourcesDown(t *testing.T) {
	src := liveSource()
	p := New(src, WithLogger(quietLogger()))

	online := p.Refresh(context.Background())
	require.Equal(t, StateOnline, online.State)

	src.status = deadSource().status
	src.network = deadSource().network

	done := make(chan Snapshot, 1)
	go func() { done <- p.Refresh(context.Background()) }()

	var snap Snapshot
	select {
	case snap = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not resolve")
	}

	assert.Equal(t, StateOffline, snap.State)
	assert.Nil(t, snap.NodeInfo)
	assert.Nil(t, snap.SyncInfo)
	assert.Nil(t, snap.NetworkInfo)
	assert.Nil(t, snap.SystemInfo)
	assert.Equal(t, online.LastUpdate, snap.LastUpdate)
	assert.Equal(t, StateOffline, p.Snapshot().State)
}

func TestPoller_MergePanicMarksOffline(t *testing.T) {
	src := &fakeSource{
		status:  func(context.Context) (*NodeStatus, error) { return nil, nil },
		network: liveSource().network,
	}
	p := New(src, WithLogger(quietLogger()))

	snap := p.Refresh(context.Background())

	assert.Equal(t, StateOffline, snap.State)
	assert.Nil(t, snap.NodeInfo)
	assert.Nil(t, snap.NetworkInfo)
}

func TestPoller_SourcePanicFallsBack(t *testing.T) {
	src := &fakeSource{
		status:  func(context.Context) (*NodeStatus, error) { panic("boom") },
		network: liveSource().network,
	}
	p := New(src, WithLogger(quietLogger()))

	snap := p.Refresh(context.Background())

	assert.Equal(t, StateOnline, snap.State)
	assert.True(t, snap.Degraded)
	assert.Equal(t, PlaceholderNodeStatus.NodeInfo, *snap.NodeInfo)
}

func TestPoller_SystemSource(t *testing.T) {
	live := &SystemInfo{Uptime: "3 days", CPULoad: "4%", Memory: "1G / 2G", Disk: "1G / 10G"}

	p := New(liveSource(), WithLogger(quietLogger()), WithSystemSource(fakeSystem{info: live}))
	snap := p.Refresh(context.Background())
	require.NotNil(t, snap.SystemInfo)
	assert.Equal(t, *live, *snap.SystemInfo)
	assert.False(t, snap.Degraded)

	p = New(liveSource(), WithLogger(quietLogger()), WithSystemSource(fakeSystem{err: errDown}))
	snap = p.Refresh(context.Background())
	require.NotNil(t, snap.SystemInfo)
	assert.Equal(t, PlaceholderSystemInfo, *snap.SystemInfo)
	assert.False(t, snap.Degraded, "system placeholders do not degrade the snapshot")
}

func TestPoller_FetchesRunConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	barrier := func(ctx context.Context) error {
		started.Done()
		waitCh := make(chan struct{})
		go func() {
			started.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
			return nil
		case <-time.After(time.Second):
			return errors.New("fetches ran sequentially")
		}
	}

	src := &fakeSource{
		status: func(ctx context.Context) (*NodeStatus, error) {
			if err := barrier(ctx); err != nil {
				return nil, err
			}
			return liveSource().status(ctx)
		},
		network: func(ctx context.Context) (*NetworkInfo, error) {
			if err := barrier(ctx); err != nil {
				return nil, err
			}
			return liveSource().network(ctx)
		},
	}

	snap := New(src, WithLogger(quietLogger())).Refresh(context.Background())

	assert.Equal(t, StateOnline, snap.State)
	assert.False(t, snap.Degraded)
}

func TestPoller_CancelledRefreshIsNotCommitted(t *testing.T) {
	p := New(liveSource(), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := p.Refresh(ctx)
	assert.Equal(t, StateOnline, snap.State)
	assert.Equal(t, StateChecking, p.Snapshot().State)
}

func TestPoller_LoadingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	src := liveSource()
	live := src.status
	src.status = func(ctx context.Context) (*NodeStatus, error) {
		close(entered)
		<-release
		return live(ctx)
	}
	p := New(src, WithLogger(quietLogger()))

	done := make(chan struct{})
	go func() {
		p.ManualRefresh(context.Background())
		close(done)
	}()

	<-entered
	assert.True(t, p.Loading())
	close(release)
	<-done
	assert.False(t, p.Loading())
}

// Each call tags its context; a consistent snapshot carries the same tag in
// every field.
type tagKey struct{}

func TestPoller_OverlappingRefreshesStayConsistent(t *testing.T) {
	src := &fakeSource{
		status: func(ctx context.Context) (*NodeStatus, error) {
			tag := ctx.Value(tagKey{}).(int)
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
			return &NodeStatus{
				NodeInfo: NodeInfo{Moniker: strconv.Itoa(tag)},
				SyncInfo: SyncInfo{LatestBlockHeight: strconv.Itoa(tag)},
			}, nil
		},
		network: func(ctx context.Context) (*NetworkInfo, error) {
			tag := ctx.Value(tagKey{}).(int)
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
			return &NetworkInfo{PeerCount: tag}, nil
		},
	}
	p := New(src, WithLogger(quietLogger()))

	updates, cancel := p.Subscribe()
	defer cancel()

	var (
		wg        sync.WaitGroup
		collected = make(chan Snapshot, 64)
	)
	go func() {
		for snap := range updates {
			collected <- snap
		}
		close(collected)
	}()

	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(tag int) {
			defer wg.Done()
			p.ManualRefresh(context.WithValue(context.Background(), tagKey{}, tag))
		}(i)
	}
	wg.Wait()

	check := func(snap Snapshot) {
		require.NotNil(t, snap.NodeInfo)
		require.NotNil(t, snap.NetworkInfo)
		assert.Equal(t, snap.NodeInfo.Moniker, snap.SyncInfo.LatestBlockHeight)
		assert.Equal(t, snap.NodeInfo.Moniker, strconv.Itoa(snap.NetworkInfo.PeerCount))
	}

	check(p.Snapshot())

	cancel()
	for snap := range collected {
		check(snap)
	}
}

func TestPoller_SubscribersEndOnCommittedSnapshot(t *testing.T) {
	src := &fakeSource{
		status: func(ctx context.Context) (*NodeStatus, error) {
			time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			return &NodeStatus{NodeInfo: NodeInfo{Moniker: "m"}}, nil
		},
		network: func(ctx context.Context) (*NetworkInfo, error) {
			time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			return &NetworkInfo{PeerCount: 1}, nil
		},
	}
	p := New(src, WithLogger(quietLogger()))

	for round := 0; round < 10; round++ {
		updates, cancel := p.Subscribe()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.ManualRefresh(context.Background())
			}()
		}
		wg.Wait()

		// The buffer holds only the newest broadcast.
		last := <-updates
		assert.Equal(t, p.Snapshot().Batch, last.Batch, "round %d", round)
		cancel()
	}
}

func TestPoller_ActivateAndStop(t *testing.T) {
	src := liveSource()
	p := New(src, WithLogger(quietLogger()), WithInterval(20*time.Millisecond))

	activation := p.Activate(context.Background())

	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	activation.Stop()
	activation.Stop()

	select {
	case <-activation.Done():
	default:
		t.Fatal("activation not done after Stop")
	}

	calls := src.calls.Load()
	snap := p.Snapshot()

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, calls, src.calls.Load())
	assert.Equal(t, snap, p.Snapshot())
}

func TestPoller_StopAbortsInFlightScheduledRefresh(t *testing.T) {
	entered := make(chan struct{}, 1)
	src := liveSource()
	live := src.status
	src.status = func(ctx context.Context) (*NodeStatus, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return live(ctx)
	}
	p := New(src, WithLogger(quietLogger()), WithInterval(time.Hour))

	activation := p.Activate(context.Background())
	<-entered
	activation.Stop()

	assert.Equal(t, StateChecking, p.Snapshot().State)
}

func TestPoller_ActivateStopsWithParentContext(t *testing.T) {
	p := New(liveSource(), WithLogger(quietLogger()), WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	activation := p.Activate(ctx)
	cancel()

	select {
	case <-activation.Done():
	case <-time.After(time.Second):
		t.Fatal("poller kept running after context cancellation")
	}
}

func TestPoller_SubscribeKeepsLatest(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(liveSource(), WithLogger(quietLogger()), WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))

	updates, cancel := p.Subscribe()

	p.Refresh(context.Background())
	last := p.Refresh(context.Background())

	got := <-updates
	assert.Equal(t, last.Batch, got.Batch)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)
}
