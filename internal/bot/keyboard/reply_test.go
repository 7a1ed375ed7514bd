package keyboard_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
)

type mockTranslator struct {
	translations map[string]string
}

func (m *mockTranslator) T(key string) string {
	if v, ok := m.translations[key]; ok {
		return v
	}
	return key
}

func (m *mockTranslator) Tf(key string, args ...any) string {
	return fmt.Sprintf(m.T(key), args...)
}

func (m *mockTranslator) Lang() string { return "en" }


func TestMainMenu(t *testing.T) {
	translator := &mockTranslator{
		translations: map[string]string{
			keyboard.MenuStatus:  "Status",
			keyboard.MenuRefresh: "Refresh",
			keyboard.MenuWhoami:  "Account",
			keyboard.MenuLogout:  "Sign out",
			keyboard.MenuHelp:    "Help",
		},
	}

	markup := keyboard.MainMenu(translator)
	assert.True(t, markup.ResizeKeyboard)

	expectedRows := [][]string{
		{"Status", "Refresh"},
		{"Account", "Sign out"},
		{"Help"},
	}

	require.Len(t, markup.ReplyKeyboard, len(expectedRows))
	for i, row := range expectedRows {
		require.Len(t, markup.ReplyKeyboard[i], len(row))
		for j, text := range row {
			assert.Equal(t, text, markup.ReplyKeyboard[i][j].Text)
		}
	}
}

func TestLoggedOutMenu(t *testing.T) {
	markup := keyboard.LoggedOutMenu(nil)

	require.Len(t, markup.ReplyKeyboard, 2)
	assert.Equal(t, keyboard.MenuLogin, markup.ReplyKeyboard[0][0].Text, "nil translator echoes keys")
	assert.Equal(t, keyboard.MenuHelp, markup.ReplyKeyboard[1][0].Text)
}
