package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type monitorResponse struct {
	Snapshot   monitor.Snapshot `json:"snapshot"`
	Loading    bool             `json:"loading"`
	LastUpdate *time.Time       `json:"lastUpdate"`
}

func (s *Server) monitorView(snap monitor.Snapshot) monitorResponse {
	return monitorResponse{
		Snapshot:   snap,
		Loading:    s.deps.Monitor.Loading(),
		LastUpdate: snap.LastUpdate,
	}
}

func (s *Server) handleMonitor(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, s.monitorView(s.deps.Monitor.Snapshot()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Monitor.ManualRefresh(r.Context())
	middleware.WriteJSON(w, http.StatusOK, s.monitorView(snap))
}

// handleMonitorWS pushes the current snapshot and then every committed one.
// Client messages are read only to notice the close.
func (s *Server) handleMonitorWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.deps.Monitor.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.DebugContext(r.Context(), "websocket closed", "error", err)
				}
				return
			}
		}
	}()

	send := func(snap monitor.Snapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(s.monitorView(snap))
	}

	if err := send(s.deps.Monitor.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// checkOrigin accepts same-host upgrades and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := s.origins["*"]; ok {
		return true
	}
	if _, ok := s.origins[origin]; ok {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
