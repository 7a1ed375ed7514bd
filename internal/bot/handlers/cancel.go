package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// NewCancelHandler leaves any conversation and shows the menu again.
func NewCancelHandler(d *Deps) Handler {
	return func(c telebot.Context) error {
		ctx := context.Background()
		chatID := ChatID(c)

		if err := d.FSM.ClearState(ctx, chatID); err != nil {
			d.logger().Error("failed to clear chat state", slog.Int64("chat_id", chatID), slog.Any("error", err))
			return err
		}

		t := d.Translator(c)
		return c.Send(t.T("common.cancelled"), menuFor(d.session(ctx, c).IsAuthenticated(), t))
	}
}
