package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
)

// NewStartHandler greets the chat and shows the menu matching its session.
func NewStartHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		t := d.Translator(c)
		return c.Send(t.T("start.welcome"), menuFor(d.session(context.Background(), c).IsAuthenticated(), t))
	}
}

func NewHelpHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		return c.Send(d.Translator(c).T("help.text"))
	}
}

// NewUnknownHandler answers text that matched neither a command nor a conversation step.
func NewUnknownHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		return c.Send(d.Translator(c).T("common.unknown"))
	}
}

func menuFor(authenticated bool, t i18n.Translator) *telebot.ReplyMarkup {
	if authenticated {
		return keyboard.MainMenu(t)
	}
	return keyboard.LoggedOutMenu(t)
}
