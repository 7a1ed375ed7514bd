package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/state"
)

var (
	monitorRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_refresh_total",
			Help: "Total number of status refreshes labeled by resulting node state",
		},
		[]string{"state"},
	)
	monitorFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_fallback_total",
			Help: "Total number of placeholder payloads used, labeled by source",
		},
		[]string{"source"},
	)
	monitorRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_refresh_duration_seconds",
			Help:    "Duration of a full status refresh in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	monitorNodeOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_node_online",
			Help: "1 when the last committed snapshot reported the node online",
		},
	)
	monitorPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_peers",
			Help: "Peer count from the last committed snapshot",
		},
	)
	sessionLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_logins_total",
			Help: "Total number of login attempts labeled by result",
		},
		[]string{"result"},
	)
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Rate limit checks labeled by backend and result",
		},
		[]string{"backend", "result"},
	)
	rateLimitBackendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_backend_errors_total",
			Help: "Limiter backend failures, including calls skipped by an open breaker",
		},
		[]string{"backend"},
	)
	sessionLogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_logouts_total",
			Help: "Total number of logouts",
		},
	)
	sessionRestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_restores_total",
			Help: "Total number of session restores labeled by outcome",
		},
		[]string{"result"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests labeled by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	nodeControlTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_control_total",
			Help: "Total number of node service actions labeled by action and status",
		},
		[]string{"action", "status"},
	)
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of conversation state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	chatsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_chats_by_state",
			Help: "Number of chats per conversation state",
		},
		[]string{"state"},
	)
)

var trackedStates = []state.State{
	state.StateIdle,
	state.StateLoginUsername,
	state.StateLoginPassword,
	state.StateError,
}

func init() {
	state.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordRefresh tracks one committed or discarded refresh.
func RecordRefresh(nodeState string, duration time.Duration) {
	monitorRefreshTotal.WithLabelValues(orUnknown(nodeState)).Inc()
	monitorRefreshDuration.Observe(duration.Seconds())
}

// RecordFallback counts a placeholder substitution for source.
func RecordFallback(source string) {
	monitorFallbackTotal.WithLabelValues(orUnknown(source)).Inc()
}

// SetNodeStatus mirrors the latest snapshot into gauges.
func SetNodeStatus(online bool, peers int) {
	if online {
		monitorNodeOnline.Set(1)
	} else {
		monitorNodeOnline.Set(0)
	}
	monitorPeers.Set(float64(peers))
}

// RecordLogin counts a login attempt; result is success, rejected or error.
func RecordLogin(result string) {
	sessionLoginsTotal.WithLabelValues(orUnknown(result)).Inc()
}

func RecordLogout() {
	sessionLogoutsTotal.Inc()
}

// RecordRestore counts a restore; result is restored, empty or corrupt.
func RecordRestore(result string) {
	sessionRestoresTotal.WithLabelValues(orUnknown(result)).Inc()
}

// RecordHTTPRequest tracks a served HTTP request.
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	route = orUnknown(route)
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimitCheck counts one limiter decision.
func RecordRateLimitCheck(backend string, allowed bool) {
	result := "rejected"
	if allowed {
		result = "allowed"
	}
	rateLimitChecksTotal.WithLabelValues(orUnknown(backend), result).Inc()
}

func RecordRateLimitBackendError(backend string) {
	rateLimitBackendErrorsTotal.WithLabelValues(orUnknown(backend)).Inc()
}

// RecordNodeControl tracks a systemctl action.
func RecordNodeControl(action, status string) {
	nodeControlTotal.WithLabelValues(orUnknown(action), orUnknown(status)).Inc()
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	command = orUnknown(command)
	botCommandsTotal.WithLabelValues(command, orUnknown(status)).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition tracks FSM transitions.
func RecordStateTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(orUnknown(code), orUnknown(severity)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// StateCollector periodically gathers conversation state counts and emits gauge metrics.
type StateCollector struct {
	fsm      state.StateMachine
	interval time.Duration
}

// NewStateCollector builds a metrics collector bound to the provided FSM.
func NewStateCollector(fsm state.StateMachine, interval time.Duration) *StateCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &StateCollector{fsm: fsm, interval: interval}
}

// Run polls the FSM every interval, updating gauges until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.fsm == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	states, err := c.fsm.GetAllStates(ctx)
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(states))
	for _, st := range states {
		label := "unknown"
		if st != nil && st.CurrentState != "" {
			label = string(st.CurrentState)
		}
		counts[label]++
	}

	chatsByState.Reset()

	for _, tracked := range trackedStates {
		label := string(tracked)
		chatsByState.WithLabelValues(label).Set(float64(counts[label]))
		delete(counts, label)
	}

	for label, count := range counts {
		chatsByState.WithLabelValues(label).Set(float64(count))
	}

	return nil
}
