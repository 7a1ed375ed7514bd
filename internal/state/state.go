package state

import "time"

// State represents a step of a chat conversation.
type State string

const (
	// StateIdle indicates that the chat is waiting for the next command.
	StateIdle State = "idle"
	// StateLoginUsername indicates that the bot asked for the username.
	StateLoginUsername State = "login_username"
	// StateLoginPassword indicates that the bot asked for the password.
	StateLoginPassword State = "login_password"
	// StateError indicates that the conversation broke and requires recovery.
	StateError State = "error"
)

// ContextUsername is the conversation context key holding the username typed during login.
const ContextUsername = "username"

// UserState captures the current conversation state for a chat.
type UserState struct {
	ChatID       int64                  `json:"chat_id"`
	CurrentState State                  `json:"current_state"`
	Context      map[string]interface{} `json:"context"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ContextString returns the string stored under key, or "".
func (s *UserState) ContextString(key string) string {
	if s == nil || s.Context == nil {
		return ""
	}
	v, _ := s.Context[key].(string)
	return v
}
