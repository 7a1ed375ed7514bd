// Package state keeps per-chat conversation state for the Telegram front-end.
package state

import "context"

// Storage defines the persistence contract for conversation state.
type Storage interface {
	GetState(ctx context.Context, chatID int64) (*UserState, error)
	SetState(ctx context.Context, chatID int64, state *UserState) error
	ClearState(ctx context.Context, chatID int64) error
	GetAllStates(ctx context.Context) ([]*UserState, error)
}
