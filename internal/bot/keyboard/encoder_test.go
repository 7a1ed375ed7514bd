package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
)

func TestEncodeCallback(t *testing.T) {
	tests := []struct {
		name      string
		unique    string
		data      string
		want      string
		wantError bool
	}{
		{
			name:   "with data",
			unique: "node_action",
			data:   "restart",
			want:   "\fnode_action|restart",
		},
		{
			name:   "without data",
			unique: "status_refresh",
			want:   "\fstatus_refresh",
		},
		{
			name:      "exceeds limit",
			unique:    strings.Repeat("x", keyboard.CallbackDataLimitBytes),
			wantError: true,
		},
		{
			name:      "separator in unique",
			unique:    "a|b",
			wantError: true,
		},
		{
			name:      "empty unique",
			wantError: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := keyboard.EncodeCallback(tt.unique, tt.data)
			if tt.wantError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCallback(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantUnique string
		wantData   string
		wantErr    bool
	}{
		{name: "unique and data", input: "\fnode_action|stop", wantUnique: "node_action", wantData: "stop"},
		{name: "without prefix", input: "status_refresh", wantUnique: "status_refresh"},
		{name: "separator in data", input: "\fa|b|c", wantUnique: "a", wantData: "b|c"},
		{name: "empty input", input: "", wantErr: true},
		{name: "prefix only", input: "\f", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			unique, data, err := keyboard.DecodeCallback(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantUnique, unique)
			assert.Equal(t, tt.wantData, data)
		})
	}
}
