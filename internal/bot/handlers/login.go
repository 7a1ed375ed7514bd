package handlers

import (
	"context"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/session"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/state"
)

// NewLoginHandler handles /login. "/login <user> <pass>" signs in at once;
// a bare /login starts the username then password conversation.
func NewLoginHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		ctx := context.Background()
		t := d.Translator(c)
		mgr := d.session(ctx, c)

		if st := mgr.State(); st.IsAuthenticated {
			return c.Send(t.Tf("login.already", st.User.DisplayName), keyboard.MainMenu(t))
		}

		if args := c.Args(); len(args) >= 2 {
			forgetCredentials(d, c)
			return finishLogin(ctx, d, c, t, mgr, args[0], strings.Join(args[1:], " "))
		}

		if err := d.FSM.SetState(ctx, ChatID(c), state.StateLoginUsername, nil); err != nil {
			return err
		}
		return c.Send(t.T("login.ask_username"), d.Keyboard.LoginCancel(t))
	}
}

// NewLoginUsernameHandler stores the username and asks for the password.
func NewLoginUsernameHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		ctx := context.Background()
		t := d.Translator(c)

		username := strings.TrimSpace(c.Text())
		if username == "" {
			return c.Send(t.T("login.ask_username"), d.Keyboard.LoginCancel(t))
		}

		err := d.FSM.TransitionTo(ctx, ChatID(c), state.StateLoginPassword, map[string]interface{}{
			state.ContextUsername: username,
		})
		if err != nil {
			return conversationError(err)
		}
		return c.Send(t.T("login.ask_password"), d.Keyboard.LoginCancel(t))
	}
}

// NewLoginPasswordHandler completes the conversation. The conversation ends
// whatever the outcome; a rejected user starts over with /login.
func NewLoginPasswordHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		ctx := context.Background()
		t := d.Translator(c)
		chatID := ChatID(c)

		st, err := d.FSM.GetState(ctx, chatID)
		if err != nil {
			return err
		}
		username := st.ContextString(state.ContextUsername)
		password := c.Text()
		forgetCredentials(d, c)

		if err := d.FSM.ClearState(ctx, chatID); err != nil {
			d.logger().Warn("failed to clear login conversation", slog.Int64("chat_id", chatID), slog.Any("error", err))
		}

		return finishLogin(ctx, d, c, t, d.session(ctx, c), username, password)
	}
}

// NewLoginCancelCallback handles the inline cancel button of the conversation.
func NewLoginCancelCallback(d *Deps) CallbackHandler {
	return func(c telebot.Context) error {
		_ = c.Respond()
		return NewCancelHandler(d)(c)
	}
}

func finishLogin(ctx context.Context, d *Deps, c telebot.Context, t i18n.Translator, mgr *session.Manager, username, password string) error {
	ok, err := mgr.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if !ok {
		return c.Send(t.T("login.rejected"), keyboard.LoggedOutMenu(t))
	}

	st := mgr.State()
	return c.Send(t.Tf("login.success", st.User.DisplayName), keyboard.MainMenu(t))
}

// forgetCredentials removes the message that carried a password from the chat.
func forgetCredentials(d *Deps, c telebot.Context) {
	if c.Message() == nil {
		return
	}
	if err := c.Delete(); err != nil {
		d.logger().Debug("could not delete credentials message", slog.Any("error", err))
	}
}
