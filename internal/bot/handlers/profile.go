package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
)

// NewWhoamiHandler shows the signed-in account.
func NewWhoamiHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		mgr, err := d.authenticated(context.Background(), c)
		if err != nil {
			return err
		}

		user := mgr.State().User
		return c.Send(d.Translator(c).Tf("whoami.text",
			user.DisplayName,
			user.Email,
			user.AccountNumber,
			user.Balance.StringFixed(2),
		))
	}
}

// NewLogoutHandler ends the chat's session.
func NewLogoutHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		ctx := context.Background()
		t := d.Translator(c)
		mgr := d.session(ctx, c)

		if !mgr.IsAuthenticated() {
			return c.Send(t.T("logout.not_logged"), keyboard.LoggedOutMenu(t))
		}

		if err := mgr.Logout(ctx); err != nil {
			return err
		}
		return c.Send(t.T("logout.done"), keyboard.LoggedOutMenu(t))
	}
}
