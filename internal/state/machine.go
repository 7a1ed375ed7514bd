package state

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	chatLockPrefix = "galicia:fsm:lock:"
	lockTTL        = 5 * time.Second
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrStateNotFound     = errors.New("chat state not found")
	// ErrStateLocked means another update for the same chat is being handled.
	ErrStateLocked = errors.New("state is locked, try again later")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder observes every accepted transition. nil resets it.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		recorder = func(string, string) {}
	}
	transitionRecorder = recorder
}

// StateMachine drives the per-chat login conversation.
type StateMachine interface {
	GetState(ctx context.Context, chatID int64) (*UserState, error)
	SetState(ctx context.Context, chatID int64, state State, contextData map[string]interface{}) error
	TransitionTo(ctx context.Context, chatID int64, newState State, contextData map[string]interface{}) error
	ClearState(ctx context.Context, chatID int64) error
	GetAllStates(ctx context.Context) ([]*UserState, error)
}

// chatLocker serializes writes per chat. Acquire never blocks: a held lock is
// reported as ErrStateLocked.
type chatLocker interface {
	acquire(ctx context.Context, chatID int64) (release func(), err error)
}

type machine struct {
	storage Storage
	locks   chatLocker
	log     *slog.Logger
}

// NewStateMachine builds the FSM over storage. With a Redis client the per-chat
// lock is shared across processes; without one it is local to this process.
func NewStateMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) StateMachine {
	if log == nil {
		log = slog.Default()
	}
	var locks chatLocker = &localLocker{held: map[int64]struct{}{}}
	if redisClient != nil {
		locks = &redisLocker{rdb: redisClient, log: log}
	}
	return &machine{storage: storage, locks: locks, log: log}
}

func (m *machine) GetState(ctx context.Context, chatID int64) (*UserState, error) {
	return m.storage.GetState(ctx, chatID)
}

func (m *machine) GetAllStates(ctx context.Context) ([]*UserState, error) {
	return m.storage.GetAllStates(ctx)
}

// SetState stores state unconditionally.
func (m *machine) SetState(ctx context.Context, chatID int64, state State, contextData map[string]interface{}) error {
	return m.locked(ctx, chatID, func() error {
		return m.save(ctx, chatID, state, contextData)
	})
}

// TransitionTo moves the chat to newState when the transition table allows it.
// A chat with no stored state counts as idle. contextData replaces the stored
// conversation context.
func (m *machine) TransitionTo(ctx context.Context, chatID int64, newState State, contextData map[string]interface{}) error {
	return m.locked(ctx, chatID, func() error {
		from, err := m.current(ctx, chatID)
		if err != nil {
			return err
		}
		if !IsTransitionAllowed(from, newState) {
			m.log.Warn("invalid state transition", "chat_id", chatID, "from", from, "to", newState)
			return ErrInvalidTransition
		}
		transitionRecorder(string(from), string(newState))
		return m.save(ctx, chatID, newState, contextData)
	})
}

func (m *machine) ClearState(ctx context.Context, chatID int64) error {
	return m.locked(ctx, chatID, func() error {
		return m.storage.ClearState(ctx, chatID)
	})
}

func (m *machine) current(ctx context.Context, chatID int64) (State, error) {
	st, err := m.storage.GetState(ctx, chatID)
	switch {
	case errors.Is(err, ErrStateNotFound):
		return StateIdle, nil
	case err != nil:
		return "", err
	case st == nil:
		return StateIdle, nil
	}
	return st.CurrentState, nil
}

func (m *machine) save(ctx context.Context, chatID int64, state State, contextData map[string]interface{}) error {
	return m.storage.SetState(ctx, chatID, &UserState{
		ChatID:       chatID,
		CurrentState: state,
		Context:      contextData,
	})
}

func (m *machine) locked(ctx context.Context, chatID int64, fn func() error) error {
	release, err := m.locks.acquire(ctx, chatID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

type localLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func (l *localLocker) acquire(_ context.Context, chatID int64) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[chatID]; busy {
		return nil, ErrStateLocked
	}
	l.held[chatID] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, chatID)
		l.mu.Unlock()
	}, nil
}

// releaseIfOwner deletes the lock only while it still carries our token, so
// a lock that expired and was retaken elsewhere survives.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb *redis.Client
	log *slog.Logger
}

func (l *redisLocker) acquire(ctx context.Context, chatID int64) (func(), error) {
	key := chatLockPrefix + strconv.FormatInt(chatID, 10)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		l.log.Error("failed to acquire chat state lock", "chat_id", chatID, "error", err)
		return nil, err
	}
	if !ok {
		l.log.Warn("chat state lock already held", "chat_id", chatID)
		return nil, ErrStateLocked
	}

	return func() {
		if err := releaseIfOwner.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token).Err(); err != nil {
			l.log.Error("failed to release chat state lock", "chat_id", chatID, "error", err)
		}
	}, nil
}
