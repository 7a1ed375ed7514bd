package node

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
)

const statusBody = `{"jsonrpc":"2.0","id":-1,"result":{"node_info":{"id":"f00dbabe","moniker":"galicia-juno"},"sync_info":{"latest_block_height":"7654321","catching_up":true}}}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRPCServer(t *testing.T, status, netInfo http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", status)
	mux.HandleFunc("/net_info", netInfo)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func TestClient_NodeStatus(t *testing.T) {
	srv := newRPCServer(t, writeBody(statusBody), writeBody(`{}`))
	c := NewClient(RPCEndpoints(srv.URL+"/"), time.Second, testLogger())

	st, err := c.NodeStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "galicia-juno", st.NodeInfo.Moniker)
	assert.Equal(t, "f00dbabe", st.NodeInfo.ID)
	assert.Equal(t, "7654321", st.SyncInfo.LatestBlockHeight)
	assert.True(t, st.SyncInfo.CatchingUp)
}

func TestClient_NetworkInfo(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "string peers", body: `{"result":{"listening":true,"n_peers":"15"}}`, want: 15},
		{name: "numeric peers", body: `{"result":{"n_peers":3}}`, want: 3},
		{name: "missing peers", body: `{"result":{}}`, wantErr: true},
		{name: "missing result", body: `{"error":"boom"}`, wantErr: true},
		{name: "null result", body: `{"result":null}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
		{name: "non numeric peers", body: `{"result":{"n_peers":"many"}}`, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			srv := newRPCServer(t, writeBody(statusBody), writeBody(tc.body))
			c := NewClient(RPCEndpoints(srv.URL), time.Second, testLogger())

			info, err := c.NetworkInfo(context.Background())
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, info.PeerCount)
		})
	}
}

func TestClient_UpstreamFailures(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		srv := newRPCServer(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}, writeBody(`{}`))
		c := NewClient(RPCEndpoints(srv.URL), time.Second, testLogger())

		_, err := c.NodeStatus(context.Background())
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeUpstream, appErr.Code)
		assert.Error(t, c.HealthCheck(context.Background()))
	})

	t.Run("timeout", func(t *testing.T) {
		srv := newRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}, writeBody(`{}`))
		c := NewClient(RPCEndpoints(srv.URL), 50*time.Millisecond, testLogger())

		start := time.Now()
		_, err := c.NodeStatus(context.Background())
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	})

	t.Run("breaker opens after repeated failures", func(t *testing.T) {
		var hits atomic.Int32
		srv := newRPCServer(t, func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}, writeBody(`{}`))
		c := NewClient(RPCEndpoints(srv.URL), time.Second, testLogger())

		for i := 0; i < 6; i++ {
			_, _ = c.NodeStatus(context.Background())
		}
		assert.Equal(t, int32(4), hits.Load())
		assert.Equal(t, apperrors.StateOpen, c.breaker.State())
	})
}

func TestClient_Raw(t *testing.T) {
	srv := newRPCServer(t, writeBody(statusBody), writeBody(`not json`))
	c := NewClient(RPCEndpoints(srv.URL), time.Second, testLogger())

	raw, err := c.RawStatus(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, statusBody, string(raw))

	_, err = c.RawNetInfo(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, Endpoints{Status: "http://localhost:26657/status", NetInfo: "http://localhost:26657/net_info"},
		RPCEndpoints("http://localhost:26657/"))
	assert.Equal(t, Endpoints{Status: "http://localhost:3001/api/juno/status", NetInfo: "http://localhost:3001/api/juno/network"},
		DashboardEndpoints("http://localhost:3001"))
}

func TestClient_BreakerIgnoresCallerCancellation(t *testing.T) {
	srv := newRPCServer(t, writeBody(statusBody), writeBody(`{"result":{"n_peers":"3"}}`))
	c := NewClient(RPCEndpoints(srv.URL), time.Second, testLogger())
	p := monitor.New(c, monitor.WithLogger(testLogger()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		p.ManualRefresh(cancelled)
		_, err := c.RawStatus(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, apperrors.StateClosed, c.breaker.State())
	assert.Equal(t, apperrors.StateClosed, c.proxy.State())

	snap := p.Refresh(context.Background())
	assert.Equal(t, monitor.StateOnline, snap.State)
	require.NotNil(t, snap.NetworkInfo)
	assert.Equal(t, 3, snap.NetworkInfo.PeerCount)
}

func TestClient_BreakerIgnoresMidRequestCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := newRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, writeBody(`{}`))
	t.Cleanup(func() { close(release) })
	c := NewClient(RPCEndpoints(srv.URL), 5*time.Second, testLogger())

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := c.NodeStatus(ctx)
		cancel()
		assert.Error(t, err)
	}
	assert.Equal(t, apperrors.StateClosed, c.breaker.State())
}

func TestClient_ProxyFailuresDoNotTripMonitorBreaker(t *testing.T) {
	srv := newRPCServer(t, writeBody(statusBody), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := NewClient(RPCEndpoints(srv.URL), time.Second, testLogger())

	for i := 0; i < 6; i++ {
		_, _ = c.RawNetInfo(context.Background())
	}
	require.Equal(t, apperrors.StateOpen, c.proxy.State())

	_, err := c.NodeStatus(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, apperrors.StateClosed, c.breaker.State())
}
