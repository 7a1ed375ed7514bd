package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
)

// Reply keyboard labels, as i18n keys. The bot maps a pressed label back to
// its command in every loaded language.
const (
	MenuLogin   = "menu.login"
	MenuStatus  = "menu.status"
	MenuRefresh = "menu.refresh"
	MenuWhoami  = "menu.whoami"
	MenuLogout  = "menu.logout"
	MenuHelp    = "menu.help"
)

// MainMenu is shown to signed-in chats.
func MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}

	markup.Reply(
		markup.Row(markup.Text(lookup(t, MenuStatus)), markup.Text(lookup(t, MenuRefresh))),
		markup.Row(markup.Text(lookup(t, MenuWhoami)), markup.Text(lookup(t, MenuLogout))),
		markup.Row(markup.Text(lookup(t, MenuHelp))),
	)

	return markup
}

// LoggedOutMenu is shown before login and after logout.
func LoggedOutMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}

	markup.Reply(
		markup.Row(markup.Text(lookup(t, MenuLogin))),
		markup.Row(markup.Text(lookup(t, MenuHelp))),
	)

	return markup
}
