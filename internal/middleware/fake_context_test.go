package middleware

import (
	telebot "gopkg.in/telebot.v3"
)

// fakeContext overrides the parts of telebot.Context the middlewares use.
type fakeContext struct {
	telebot.Context

	sender   *telebot.User
	message  *telebot.Message
	callback *telebot.Callback
	sent     []interface{}
}

func (f *fakeContext) Sender() *telebot.User { return f.sender }
func (f *fakeContext) Message() *telebot.Message { return f.message }
func (f *fakeContext) Callback() *telebot.Callback { return f.callback }
func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func (f *fakeContext) Text() string {
	if f.message == nil {
		return ""
	}
	return f.message.Text
}

func textUpdate(userID int64, msgID int, text string) *fakeContext {
	return &fakeContext{
		sender:  &telebot.User{ID: userID},
		message: &telebot.Message{ID: msgID, Text: text, Chat: &telebot.Chat{ID: userID}},
	}
}
