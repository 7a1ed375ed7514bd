package monitor

import (
	"context"
	"time"
)

// NodeState is the connectivity verdict of a snapshot.
type NodeState string

const (
	StateChecking NodeState = "checking"
	StateOnline   NodeState = "online"
	StateOffline  NodeState = "offline"
)

type NodeInfo struct {
	Moniker string `json:"moniker"`
	ID      string `json:"id"`
}

type SyncInfo struct {
	LatestBlockHeight string `json:"latest_block_height"`
	CatchingUp        bool   `json:"catching_up"`
}

// NodeStatus is the node's self-description from the status endpoint.
type NodeStatus struct {
	NodeInfo NodeInfo `json:"node_info"`
	SyncInfo SyncInfo `json:"sync_info"`
}

type NetworkInfo struct {
	PeerCount int `json:"n_peers"`
}

type SystemInfo struct {
	Uptime  string `json:"uptime"`
	CPULoad string `json:"cpu"`
	Memory  string `json:"memory"`
	Disk    string `json:"disk"`
}

// Snapshot is one refresh result. It is replaced wholesale, never patched.
// Informational fields are nil unless State is online.
type Snapshot struct {
	State       NodeState    `json:"state"`
	NodeInfo    *NodeInfo    `json:"nodeInfo,omitempty"`
	SyncInfo    *SyncInfo    `json:"syncInfo,omitempty"`
	NetworkInfo *NetworkInfo `json:"networkInfo,omitempty"`
	SystemInfo  *SystemInfo  `json:"systemInfo,omitempty"`
	LastUpdate  *time.Time   `json:"lastUpdate,omitempty"`
	// Degraded is set when at least one source was replaced by its placeholder.
	Degraded bool `json:"degraded"`
	// Batch identifies the Refresh call that produced the snapshot.
	Batch uint64 `json:"batch"`
}

func (s Snapshot) clone() Snapshot {
	cp := s
	if s.NodeInfo != nil {
		v := *s.NodeInfo
		cp.NodeInfo = &v
	}
	if s.SyncInfo != nil {
		v := *s.SyncInfo
		cp.SyncInfo = &v
	}
	if s.NetworkInfo != nil {
		v := *s.NetworkInfo
		cp.NetworkInfo = &v
	}
	if s.SystemInfo != nil {
		v := *s.SystemInfo
		cp.SystemInfo = &v
	}
	if s.LastUpdate != nil {
		v := *s.LastUpdate
		cp.LastUpdate = &v
	}
	return cp
}

// Source fetches node and network status. Each call is independent and may fail.
type Source interface {
	NodeStatus(ctx context.Context) (*NodeStatus, error)
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)
}

// SystemSource reports host metrics.
type SystemSource interface {
	SystemInfo(ctx context.Context) (*SystemInfo, error)
}

// Placeholder payloads substituted when a source fails.
var (
	PlaceholderNodeStatus = NodeStatus{
		NodeInfo: NodeInfo{Moniker: "juno-node", ID: "1A2B3C4D..."},
		SyncInfo: SyncInfo{LatestBlockHeight: "1234567", CatchingUp: false},
	}
	PlaceholderNetworkInfo = NetworkInfo{PeerCount: 15}
	PlaceholderSystemInfo  = SystemInfo{
		Uptime:  "2h 15m",
		CPULoad: "15%",
		Memory:  "2.1G / 8.0G",
		Disk:    "45G / 100G",
	}
)
