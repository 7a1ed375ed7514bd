package keyboard

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
)

// Callback uniques handled by the bot.
const (
	UniqueStatusRefresh = "status_refresh"
	UniqueLoginCancel   = "login_cancel"
)

// Builder creates the bot's inline keyboards.
type Builder struct {
	log *slog.Logger
}

// NewBuilder returns a new Builder instance.
func NewBuilder(log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{log: log}
}

// StatusActions is attached under a status report.
func (b *Builder) StatusActions(t i18n.Translator) *telebot.ReplyMarkup {
	return b.build([]telebot.InlineButton{{Text: lookup(t, "status.refresh_button"), Unique: UniqueStatusRefresh}})
}

// LoginCancel lets the user leave the login conversation.
func (b *Builder) LoginCancel(t i18n.Translator) *telebot.ReplyMarkup {
	return b.build([]telebot.InlineButton{{Text: lookup(t, "login.cancel_button"), Unique: UniqueLoginCancel}})
}

// build falls back to no keyboard; the message is still worth sending.
func (b *Builder) build(rows ...[]telebot.InlineButton) *telebot.ReplyMarkup {
	markup, err := Inline(rows...)
	if err != nil {
		b.log.Error("failed to build inline keyboard", slog.Any("error", err))
		return nil
	}
	return markup
}

// Inline renders rows as inline markup, skipping empty rows. Telebot joins
// Unique and Data when sending, so each button is checked in that encoded form.
func Inline(rows ...[]telebot.InlineButton) (*telebot.ReplyMarkup, error) {
	markup := &telebot.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		for _, btn := range row {
			if _, err := EncodeCallback(btn.Unique, btn.Data); err != nil {
				return nil, fmt.Errorf("button %q: %w", btn.Text, err)
			}
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, append([]telebot.InlineButton(nil), row...))
	}
	return markup, nil
}

func lookup(t i18n.Translator, key string) string {
	if t == nil {
		return key
	}
	return t.T(key)
}
