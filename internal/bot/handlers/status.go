package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
)

const timeLayout = "15:04:05"

// NewStatusHandler shows the latest committed snapshot without fetching.
func NewStatusHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		if _, err := d.authenticated(context.Background(), c); err != nil {
			return err
		}

		t := d.Translator(c)
		return c.Send(RenderStatus(t, d.Monitor.Snapshot(), d.Monitor.Loading()), d.Keyboard.StatusActions(t))
	}
}

// NewRefreshHandler fetches a fresh snapshot and shows it.
func NewRefreshHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		ctx := context.Background()
		if _, err := d.authenticated(ctx, c); err != nil {
			return err
		}

		t := d.Translator(c)
		snap := d.Monitor.ManualRefresh(ctx)
		return c.Send(RenderStatus(t, snap, false), d.Keyboard.StatusActions(t))
	}
}

// NewRefreshCallback refreshes and edits the status message in place.
func NewRefreshCallback(d *Deps) CallbackHandler {
	return func(c telebot.Context) error {
		ctx := context.Background()
		_ = c.Respond()

		if _, err := d.authenticated(ctx, c); err != nil {
			return err
		}

		t := d.Translator(c)
		snap := d.Monitor.ManualRefresh(ctx)
		err := c.Edit(RenderStatus(t, snap, false), d.Keyboard.StatusActions(t))
		if errors.Is(err, telebot.ErrSameMessageContent) || errors.Is(err, telebot.ErrMessageNotModified) {
			return nil
		}
		return err
	}
}

// RenderStatus formats a snapshot as a chat message.
func RenderStatus(t i18n.Translator, snap monitor.Snapshot, loading bool) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line("<b>" + t.T("status.title") + "</b>")

	switch snap.State {
	case monitor.StateOnline:
		line(t.T("status.online"))
	case monitor.StateOffline:
		line(t.T("status.offline"))
	default:
		line(t.T("status.checking"))
	}
	if loading && snap.State != monitor.StateChecking {
		line(t.T("status.checking"))
	}
	if snap.Degraded {
		line(t.T("status.degraded"))
	}

	if snap.State == monitor.StateOnline {
		b.WriteByte('\n')
		if snap.NodeInfo != nil {
			line(t.Tf("status.moniker", escape(snap.NodeInfo.Moniker)))
			line(t.Tf("status.node_id", escape(snap.NodeInfo.ID)))
		}
		if snap.SyncInfo != nil {
			line(t.Tf("status.height", escape(snap.SyncInfo.LatestBlockHeight)))
			line(t.Tf("status.syncing", yesNo(t, snap.SyncInfo.CatchingUp)))
		}
		if snap.NetworkInfo != nil {
			line(t.Tf("status.peers", snap.NetworkInfo.PeerCount))
		}
		if sys := snap.SystemInfo; sys != nil {
			line(t.Tf("status.uptime", escape(sys.Uptime)))
			line(t.Tf("status.cpu", escape(sys.CPULoad)))
			line(t.Tf("status.memory", escape(sys.Memory)))
			line(t.Tf("status.disk", escape(sys.Disk)))
		}
	}

	b.WriteByte('\n')
	b.WriteString(t.Tf("status.last_update", lastUpdate(t, snap.LastUpdate)))
	return b.String()
}

func lastUpdate(t i18n.Translator, ts *time.Time) string {
	if ts == nil {
		return t.T("status.never")
	}
	return ts.Format(timeLayout)
}

func yesNo(t i18n.Translator, v bool) string {
	if v {
		return t.T("status.answer_yes")
	}
	return t.T("status.answer_no")
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escape keeps node-provided strings from breaking HTML parse mode.
func escape(s string) string {
	return htmlEscaper.Replace(s)
}
