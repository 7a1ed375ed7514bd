package middleware

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/idempotency"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/ratelimit"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := mux.NewRouter()
	r.Use(Logging(log))
	r.HandleFunc("/api/juno/control/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/juno/control/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"route":"/api/juno/control/{id}"`)
	assert.Contains(t, out, `"level":"WARN"`)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusRecorder_Hijack(t *testing.T) {
	inner := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rec := wrap(inner)

	_, _, err := rec.Hijack()
	require.NoError(t, err)
	assert.True(t, inner.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, rec.code())

	plain := wrap(httptest.NewRecorder())
	_, _, err = plain.Hijack()
	assert.Error(t, err)
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rec := wrap(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rec.code())

	_, _ = rec.Write([]byte("hi"))
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.code(), "first status wins")
	assert.Equal(t, 2, rec.bytes)
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger(), apperrors.NewHandler(testLogger(), false))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	testCases := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
	}{
		{name: "no origin", allowed: []string{"http://a"}, method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "allowed origin", allowed: []string{"http://a/"}, origin: "http://a", method: http.MethodGet, wantStatus: http.StatusOK, wantOrigin: "http://a"},
		{name: "foreign origin", allowed: []string{"http://a"}, origin: "http://b", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "foreign preflight", allowed: []string{"http://a"}, origin: "http://b", method: http.MethodOptions, wantStatus: http.StatusForbidden},
		{name: "preflight", allowed: []string{"http://a"}, origin: "http://a", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantOrigin: "http://a"},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://z", method: http.MethodGet, wantStatus: http.StatusOK, wantOrigin: "*"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/juno/status", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRateLimit_HTTP(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled: true,
		PerUser: config.RateLimitRule{Limit: 100, Window: "1m"},
		Commands: config.RateLimitCommands{
			Refresh: config.RateLimitRule{Limit: 2, Window: "1m"},
		},
	})
	guard := ratelimit.NewGuard(ratelimit.NewMemoryLimiter(testLogger()), rules, testLogger())

	h := RateLimit(guard, ratelimit.CommandRefresh)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/monitor/refresh", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001").Code)

	rec := do("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000").Code, "other clients are unaffected")
}

func TestRateLimit_NilGuard(t *testing.T) {
	called := false
	h := RateLimit(nil, "")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestIdempotency_HTTP(t *testing.T) {
	manager := idempotency.NewManager(idempotency.NewMemoryStore(), testLogger())

	var calls atomic.Int32
	status := http.StatusAccepted
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"n":`+strconv.Itoa(int(n))+`}`)
	})
	h := Idempotency(manager, func(*http.Request) string { return "sid-1" }, time.Hour, testLogger())(handler)

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/juno/control", nil)
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do("k1")
	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.JSONEq(t, `{"n":1}`, first.Body.String())

	replay := do("k1")
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.JSONEq(t, `{"n":1}`, replay.Body.String())
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, int32(1), calls.Load())

	do("")
	assert.Equal(t, int32(2), calls.Load(), "requests without a key are not deduplicated")

	status = http.StatusBadGateway
	failed := do("k2")
	assert.Equal(t, http.StatusBadGateway, failed.Code)
	status = http.StatusAccepted
	retried := do("k2")
	assert.Equal(t, http.StatusAccepted, retried.Code, "failed responses are not stored")
	assert.Equal(t, int32(4), calls.Load())

	tooLong := do(strings.Repeat("x", maxIdempotencyKeyLen+1))
	assert.Equal(t, http.StatusBadRequest, tooLong.Code)
}
