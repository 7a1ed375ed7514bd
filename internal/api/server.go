// Package api is the dashboard's HTTP surface: node status passthrough, node
// control, the client's session, the live monitor and the single-page app.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/idempotency"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/jobs"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/ratelimit"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/session"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/logger"
)

const controlIdempotencyTTL = 24 * time.Hour

// NodeProxy returns the node's raw RPC bodies.
type NodeProxy interface {
	RawStatus(ctx context.Context) (json.RawMessage, error)
	RawNetInfo(ctx context.Context) (json.RawMessage, error)
}

// MonitorView is the poller as the API sees it.
type MonitorView interface {
	Snapshot() monitor.Snapshot
	Loading() bool
	LastUpdate() *time.Time
	ManualRefresh(ctx context.Context) monitor.Snapshot
	Subscribe() (<-chan monitor.Snapshot, func())
}

// ReadinessProbe backs /healthz and /readyz.
type ReadinessProbe interface {
	Liveness(ctx context.Context) error
	Components(ctx context.Context) (map[string]string, error)
}

// Deps wires the API to the rest of the application. Guard, Idempotency,
// System and Probes are optional.
type Deps struct {
	Sessions    *session.Pool
	Node        NodeProxy
	System      monitor.SystemSource
	Monitor     MonitorView
	Control     jobs.Dispatcher
	Probes      ReadinessProbe
	Guard       *ratelimit.Guard
	Idempotency idempotency.Manager
	ErrHandler  *apperrors.Handler
	Log         *slog.Logger

	Server  config.ServerConfig
	Session config.SessionConfig
	Metrics config.MetricsConfig
}

// Server holds the HTTP handlers.
type Server struct {
	deps     Deps
	log      *slog.Logger
	upgrader websocket.Upgrader
	origins  map[string]struct{}
}

// NewHandler builds the full handler chain: correlation id, panic recovery,
// CORS around the router; logging and metrics per route.
func NewHandler(d Deps) http.Handler {
	s := newServer(d)

	r := mux.NewRouter()
	r.Use(middleware.Logging(s.log), middleware.HTTPMetrics)
	s.routes(r)

	var h http.Handler = r
	h = middleware.CORS(d.Server.AllowedOrigins)(h)
	h = middleware.Recovery(s.log, d.ErrHandler)(h)
	h = logger.Middleware(h)
	return h
}

func newServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.ErrHandler == nil {
		d.ErrHandler = apperrors.NewHandler(d.Log, false)
	}
	if d.Session.CookieName == "" {
		d.Session.CookieName = DefaultCookieName
	}

	s := &Server{
		deps:    d,
		log:     d.Log,
		origins: make(map[string]struct{}, len(d.Server.AllowedOrigins)),
	}
	for _, o := range d.Server.AllowedOrigins {
		s.origins[o] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) routes(r *mux.Router) {
	d := s.deps
	authed := s.requireSession
	limit := func(command string) func(http.Handler) http.Handler {
		return middleware.RateLimit(d.Guard, command)
	}

	api := r.PathPrefix("/api").Subrouter()

	juno := api.PathPrefix("/juno").Subrouter()
	juno.Handle("/status", limit(ratelimit.CommandStatus)(http.HandlerFunc(s.handleNodeStatus))).Methods(http.MethodGet)
	juno.Handle("/network", limit(ratelimit.CommandStatus)(http.HandlerFunc(s.handleNetInfo))).Methods(http.MethodGet)
	juno.Handle("/system", limit(ratelimit.CommandStatus)(http.HandlerFunc(s.handleSystem))).Methods(http.MethodGet)
	juno.Handle("/control", authed(limit(ratelimit.CommandControl)(
		middleware.Idempotency(d.Idempotency, s.sessionScope, controlIdempotencyTTL, s.log)(http.HandlerFunc(s.handleControl)),
	))).Methods(http.MethodPost)
	juno.Handle("/control/{id}", authed(http.HandlerFunc(s.handleControlStatus))).Methods(http.MethodGet)

	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/session/logout", s.handleLogout).Methods(http.MethodPost)

	api.Handle("/monitor", authed(http.HandlerFunc(s.handleMonitor))).Methods(http.MethodGet)
	api.Handle("/monitor/refresh", authed(limit(ratelimit.CommandRefresh)(http.HandlerFunc(s.handleRefresh)))).Methods(http.MethodPost)
	api.Handle("/monitor/ws", authed(http.HandlerFunc(s.handleMonitorWS))).Methods(http.MethodGet)

	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})

	r.HandleFunc("/healthz", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadiness).Methods(http.MethodGet)

	if d.Metrics.Enabled {
		path := d.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler()).Methods(http.MethodGet)
	}

	if d.Server.StaticDir != "" {
		r.PathPrefix("/").Handler(newSPAHandler(d.Server.StaticDir)).Methods(http.MethodGet, http.MethodHead)
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.deps.Probes != nil {
		if err := s.deps.Probes.Liveness(r.Context()); err != nil {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.deps.Probes == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	components, err := s.deps.Probes.Components(r.Context())
	if err != nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "not ready",
			"error":      err.Error(),
			"components": components,
		})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready", "components": components})
}
