// Package node talks to the local JUNO node: its CometBFT RPC, the host it runs on, and its systemd unit.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
)

const maxBodyBytes = 1 << 20

// ErrMalformedResponse is returned when a 2xx body is not the expected RPC envelope.
var ErrMalformedResponse = errors.New("malformed node response")

// Endpoints are the two URLs polled for status.
type Endpoints struct {
	Status  string
	NetInfo string
}

// RPCEndpoints targets the node's RPC directly (e.g. http://localhost:26657).
func RPCEndpoints(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	return Endpoints{Status: base + "/status", NetInfo: base + "/net_info"}
}

// DashboardEndpoints targets the dashboard's passthrough API.
func DashboardEndpoints(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	return Endpoints{Status: base + "/api/juno/status", NetInfo: base + "/api/juno/network"}
}

// Client fetches node status over HTTP. Monitor calls share one circuit
// breaker so a dead node is not hammered once per refresh per endpoint; the
// raw proxy calls have their own, so browser traffic cannot trip the poller's.
// Calls whose context ends first are not counted by either.
type Client struct {
	endpoints Endpoints
	http      *http.Client
	breaker   *apperrors.CircuitBreaker
	proxy     *apperrors.CircuitBreaker
	log       *slog.Logger
}

func newBreaker() *apperrors.CircuitBreaker {
	return apperrors.NewCircuitBreaker(apperrors.WithMinRequests(4), apperrors.WithOpenTimeout(15*time.Second))
}

var _ monitor.Source = (*Client)(nil)

func NewClient(endpoints Endpoints, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Timeout: timeout},
		breaker:   newBreaker(),
		proxy:     newBreaker(),
		log:       log,
	}
}

type envelope struct {
	Result json.RawMessage `json:"result"`
}

type statusResult struct {
	NodeInfo struct {
		ID      string `json:"id"`
		Moniker string `json:"moniker"`
	} `json:"node_info"`
	SyncInfo struct {
		LatestBlockHeight flexString `json:"latest_block_height"`
		CatchingUp        bool       `json:"catching_up"`
	} `json:"sync_info"`
}

type netInfoResult struct {
	NPeers *flexInt `json:"n_peers"`
}

// NodeStatus returns node_info and sync_info from the status endpoint.
func (c *Client) NodeStatus(ctx context.Context) (*monitor.NodeStatus, error) {
	raw, err := c.fetch(ctx, c.endpoints.Status)
	if err != nil {
		return nil, err
	}

	var res statusResult
	if err := decodeResult(raw, &res); err != nil {
		return nil, err
	}

	return &monitor.NodeStatus{
		NodeInfo: monitor.NodeInfo{Moniker: res.NodeInfo.Moniker, ID: res.NodeInfo.ID},
		SyncInfo: monitor.SyncInfo{
			LatestBlockHeight: string(res.SyncInfo.LatestBlockHeight),
			CatchingUp:        res.SyncInfo.CatchingUp,
		},
	}, nil
}

// NetworkInfo returns the peer count from the net_info endpoint.
func (c *Client) NetworkInfo(ctx context.Context) (*monitor.NetworkInfo, error) {
	raw, err := c.fetch(ctx, c.endpoints.NetInfo)
	if err != nil {
		return nil, err
	}

	var res netInfoResult
	if err := decodeResult(raw, &res); err != nil {
		return nil, err
	}
	if res.NPeers == nil {
		return nil, fmt.Errorf("%w: n_peers missing", ErrMalformedResponse)
	}

	return &monitor.NetworkInfo{PeerCount: int(*res.NPeers)}, nil
}

// RawStatus returns the status body verbatim after checking it is JSON.
func (c *Client) RawStatus(ctx context.Context) (json.RawMessage, error) {
	return c.fetchJSON(ctx, c.endpoints.Status)
}

// RawNetInfo returns the net_info body verbatim after checking it is JSON.
func (c *Client) RawNetInfo(ctx context.Context) (json.RawMessage, error) {
	return c.fetchJSON(ctx, c.endpoints.NetInfo)
}

// HealthCheck reports whether the status endpoint answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.fetch(ctx, c.endpoints.Status)
	return err
}

func (c *Client) fetchJSON(ctx context.Context, url string) (json.RawMessage, error) {
	raw, err := c.fetchVia(ctx, c.proxy, url)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, ErrMalformedResponse
	}
	return json.RawMessage(raw), nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	return c.fetchVia(ctx, c.breaker, url)
}

func (c *Client) fetchVia(ctx context.Context, breaker *apperrors.CircuitBreaker, url string) ([]byte, error) {
	var body []byte

	err := breaker.CallContext(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		c.log.Debug("node request failed", slog.String("url", url), slog.Any("error", err))
		return nil, apperrors.NewUpstreamError("juno-rpc", err)
	}

	return body, nil
}

func decodeResult(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return fmt.Errorf("%w: result missing", ErrMalformedResponse)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// flexString accepts a JSON string or number. CometBFT encodes heights as strings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
