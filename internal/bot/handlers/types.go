// Package handlers implements the bot's commands on top of the session pool
// and the status poller.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/session"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/state"
)

// Handler processes bot commands.
type Handler = telebot.HandlerFunc

// CallbackHandler processes inline callback events.
type CallbackHandler = telebot.HandlerFunc

// Middleware wraps handlers with additional behavior.
type Middleware = telebot.MiddlewareFunc

// StatusView is the part of the poller the bot reads.
type StatusView interface {
	Snapshot() monitor.Snapshot
	Loading() bool
	ManualRefresh(ctx context.Context) monitor.Snapshot
}

// Deps are shared by every handler.
type Deps struct {
	Sessions *session.Pool
	FSM      state.StateMachine
	Monitor  StatusView
	I18n     *i18n.Manager
	Keyboard *keyboard.Builder
	Log      *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d == nil || d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// Translator picks the catalog matching the sender's Telegram language.
func (d *Deps) Translator(c telebot.Context) i18n.Translator {
	lang := ""
	if c != nil && c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}
	return d.I18n.Translator(lang)
}

// SessionID is the pool id of a chat. Private chats share the sender id.
func SessionID(c telebot.Context) string {
	return "tg:" + strconv.FormatInt(ChatID(c), 10)
}

// ChatID identifies the conversation for the FSM.
func ChatID(c telebot.Context) int64 {
	if c == nil {
		return 0
	}
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if sender := c.Sender(); sender != nil {
		return sender.ID
	}
	return 0
}

func (d *Deps) session(ctx context.Context, c telebot.Context) *session.Manager {
	return d.Sessions.Get(ctx, SessionID(c))
}

// authenticated returns the chat's session or an unauthenticated error the
// error middleware turns into a login hint.
func (d *Deps) authenticated(ctx context.Context, c telebot.Context) (*session.Manager, error) {
	mgr := d.session(ctx, c)
	if !mgr.IsAuthenticated() {
		return nil, apperrors.NewUnauthenticatedError()
	}
	return mgr, nil
}

// conversationError turns FSM refusals into a state error the user can act on.
func conversationError(err error) error {
	if errors.Is(err, state.ErrInvalidTransition) || errors.Is(err, state.ErrStateLocked) {
		return apperrors.NewStateError(err.Error())
	}
	return err
}
