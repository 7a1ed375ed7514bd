package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/node"
)

var errNodeOffline = errors.New("el nodo no responde")

var nodeFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "dashboard",
		Value:   "http://localhost:3001",
		Usage:   "dashboard base URL; ignored when --rpc is set",
		Sources: cli.EnvVars("DASHBOARD_URL"),
	},
	&cli.StringFlag{
		Name:    "rpc",
		Usage:   "query the node RPC directly instead of the dashboard",
		Sources: cli.EnvVars("NODE_RPC_URL"),
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Value: 5 * time.Second,
		Usage: "per-request timeout",
	},
}

var statusCommand = &cli.Command{
	Name:   "status",
	Usage:  "fetch the node status once",
	Flags:  nodeFlags,
	Action: statusAction,
}

var watchCommand = &cli.Command{
	Name:  "watch",
	Usage: "refresh the node status until interrupted",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{
			Name:  "interval",
			Value: monitor.DefaultInterval,
			Usage: "refresh period",
		},
	}, nodeFlags...),
	Action: watchAction,
}

func newPoller(cmd *cli.Command, opts ...monitor.Option) *monitor.Poller {
	endpoints := node.DashboardEndpoints(cmd.String("dashboard"))
	if rpc := cmd.String("rpc"); rpc != "" {
		endpoints = node.RPCEndpoints(rpc)
	}

	log := newLogger(cmd)
	client := node.NewClient(endpoints, cmd.Duration("timeout"), log)
	return monitor.New(client, append([]monitor.Option{monitor.WithLogger(log)}, opts...)...)
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	snap := newPoller(cmd).Refresh(ctx)
	printSnapshot(writer(cmd), snap)
	if snap.State == monitor.StateOffline {
		return errNodeOffline
	}
	return nil
}

// watchAction mounts the poller only for an authenticated session.
func watchAction(ctx context.Context, cmd *cli.Command) error {
	mgr, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	if !mgr.IsAuthenticated() {
		return errNoSession
	}

	p := newPoller(cmd, monitor.WithInterval(cmd.Duration("interval")))
	updates, cancel := p.Subscribe()
	defer cancel()

	activation := p.Activate(ctx)
	defer activation.Stop()

	out := writer(cmd)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-updates:
			printSnapshot(out, snap)
			fmt.Fprintln(out)
		}
	}
}

func printSnapshot(w io.Writer, snap monitor.Snapshot) {
	fmt.Fprintf(w, "Estado:          %s\n", snap.State)
	if snap.State == monitor.StateOnline {
		if snap.Degraded {
			fmt.Fprintln(w, "Aviso:           datos parciales")
		}
		if snap.NodeInfo != nil {
			fmt.Fprintf(w, "Nodo:            %s\n", snap.NodeInfo.Moniker)
		}
		if snap.SyncInfo != nil {
			fmt.Fprintf(w, "Altura:          %s\n", snap.SyncInfo.LatestBlockHeight)
			fmt.Fprintf(w, "Sincronizando:   %t\n", snap.SyncInfo.CatchingUp)
		}
		if snap.NetworkInfo != nil {
			fmt.Fprintf(w, "Peers:           %d\n", snap.NetworkInfo.PeerCount)
		}
	}
	fmt.Fprintf(w, "Actualizado:     %s\n", formatTime(snap.LastUpdate))
}
