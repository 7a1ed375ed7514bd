// Package session holds the authentication state of one dashboard client.
//
// The persisted record is the source of truth: Login writes it before the
// in-memory state changes, Logout erases it, and Restore reads it exactly
// once at startup. A missing or unreadable record means "not logged in".
package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

// DefaultKey is the storage key of the persisted record.
const DefaultKey = "galicia_auth"

// The single accepted credential pair of the demo.
const (
	DemoUsername = "Fei"
	DemoPassword = "Fei"
)

// User is the demo account holder. Balance is demo data.
type User struct {
	Username      string          `json:"username"`
	DisplayName   string          `json:"name"`
	Email         string          `json:"email"`
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
}

// DemoUser returns the fixed profile created by a successful login.
func DemoUser() *User {
	return &User{
		Username:      DemoUsername,
		DisplayName:   "Fei",
		Email:         "fei@galicia.com.ar",
		AccountNumber: "1234567890",
		Balance:       decimal.RequireFromString("125000.50"),
	}
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// State is what views render. User is non-nil iff IsAuthenticated.
type State struct {
	IsAuthenticated bool  `json:"isAuthenticated"`
	User            *User `json:"user,omitempty"`
	Loading         bool  `json:"loading"`
}

type record struct {
	User *User `json:"user"`
}

func decodeRecord(raw []byte) (*User, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.User == nil || rec.User.Username == "" {
		return nil, errors.New("record has no user")
	}
	return rec.User, nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithKey overrides the storage key (DefaultKey).
func WithKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.key = key
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// Manager owns one client's session. It is safe for concurrent use;
// Restore, Login and Logout are serialized so the store and memory never diverge.
type Manager struct {
	store Store
	key   string
	log   *slog.Logger

	opMu     sync.Mutex
	restored bool

	mu    sync.RWMutex
	state State
}

// NewManager creates a Manager in the loading state. Call Restore before first use.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		key:   DefaultKey,
		log:   slog.Default(),
		state: State{Loading: true},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key returns the storage key this manager reads and writes.
func (m *Manager) Key() string {
	return m.key
}

// Restore loads the persisted record. It never fails: anything other than a
// valid record yields an unauthenticated state. The record is not modified.
func (m *Manager) Restore(ctx context.Context) State {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.restoreLocked(ctx)
}

func (m *Manager) restoreIfNeeded(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.restored {
		m.restoreLocked(ctx)
	}
}

func (m *Manager) restoreLocked(ctx context.Context) State {
	user, outcome := m.load(ctx)
	metrics.RecordRestore(outcome)

	m.restored = true
	return m.commit(user)
}

func (m *Manager) load(ctx context.Context) (user *User, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session restore panicked", slog.String("key", m.key), slog.Any("panic", r))
			user, outcome = nil, "corrupt"
		}
	}()

	if m.store == nil {
		return nil, "empty"
	}

	raw, err := m.store.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn("session store unavailable, starting logged out", slog.String("key", m.key), slog.Any("error", err))
		}
		return nil, "empty"
	}

	user, err = decodeRecord(raw)
	if err != nil {
		m.log.Warn("discarding unreadable session record", slog.String("key", m.key), slog.Any("error", err))
		return nil, "corrupt"
	}

	return user, "restored"
}

// Login accepts only the demo credential pair. A mismatch returns false with a
// nil error and leaves the state untouched. If the record cannot be persisted
// the state is also untouched and the storage error is returned.
func (m *Manager) Login(ctx context.Context, username, password string) (bool, error) {
	if !credentialsMatch(username, password) {
		metrics.RecordLogin("rejected")
		m.log.Info("login rejected", slog.String("username", username))
		return false, nil
	}

	user := DemoUser()
	raw, err := json.Marshal(record{User: user})
	if err != nil {
		metrics.RecordLogin("error")
		return false, apperrors.NewInternalError(fmt.Errorf("encode session record: %w", err))
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.store != nil {
		if err := m.store.Set(ctx, m.key, raw); err != nil {
			metrics.RecordLogin("error")
			m.log.Error("failed to persist session", slog.String("key", m.key), slog.Any("error", err))
			return false, apperrors.NewStorageError(err)
		}
	}

	m.restored = true
	m.commit(user)
	metrics.RecordLogin("success")
	m.log.Info("login succeeded", slog.String("username", user.Username))

	return true, nil
}

// Logout clears the in-memory session and erases the record. The state is
// cleared even when erasing fails; the storage error is returned for logging.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var err error
	if m.store != nil {
		err = m.store.Clear(ctx, m.key)
	}

	m.restored = true
	m.commit(nil)
	metrics.RecordLogout()

	if err != nil {
		m.log.Warn("failed to erase session record", slog.String("key", m.key), slog.Any("error", err))
		return apperrors.NewStorageError(err)
	}
	return nil
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := m.state
	st.User = st.User.clone()
	return st
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsAuthenticated
}

func (m *Manager) commit(user *User) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = State{
		IsAuthenticated: user != nil,
		User:            user.clone(),
		Loading:         false,
	}

	st := m.state
	st.User = st.User.clone()
	return st
}

func credentialsMatch(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(DemoUsername))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(DemoPassword))
	return u&p == 1
}
