package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/handlers"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/state"
)

// Dispatcher routes incoming updates to state-specific handlers.
type Dispatcher struct {
	fsm           state.StateMachine
	stateHandlers map[state.State]handlers.Handler
	log           *slog.Logger
	mu            sync.RWMutex
}

// NewDispatcher creates a Dispatcher with an empty handlers registry.
func NewDispatcher(fsm state.StateMachine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		fsm:           fsm,
		stateHandlers: make(map[state.State]handlers.Handler),
		log:           log,
	}
}

// RegisterStateHandler registers a handler for the provided state.
func (d *Dispatcher) RegisterStateHandler(s state.State, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateHandlers[s] = h
}

// CurrentState returns the chat's state, idle when none is stored.
func (d *Dispatcher) CurrentState(ctx context.Context, chatID int64) (state.State, error) {
	if d == nil || d.fsm == nil {
		return state.StateIdle, nil
	}

	userState, err := d.fsm.GetState(ctx, chatID)
	switch {
	case errors.Is(err, state.ErrStateNotFound):
		return state.StateIdle, nil
	case err != nil:
		return "", err
	case userState == nil:
		return state.StateIdle, nil
	}
	return userState.CurrentState, nil
}

// Resolve returns the handler registered for the chat's current state, or nil.
func (d *Dispatcher) Resolve(c telebot.Context) (handlers.Handler, error) {
	if d == nil {
		return nil, nil
	}
	if c == nil || handlers.ChatID(c) == 0 {
		d.log.Warn("cannot dispatch without chat information")
		return nil, nil
	}

	current, err := d.CurrentState(context.Background(), handlers.ChatID(c))
	if err != nil {
		return nil, err
	}

	handler := d.getHandler(current)
	if handler == nil && current != state.StateIdle {
		d.log.Info("no handler registered for state", slog.String("state", string(current)), slog.Int64("chat_id", handlers.ChatID(c)))
	}
	return handler, nil
}

func (d *Dispatcher) getHandler(s state.State) handlers.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateHandlers[s]
}
