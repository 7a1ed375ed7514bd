package node

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	testCases := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{in: "start", want: ActionStart},
		{in: "stop", want: ActionStop},
		{in: " restart ", want: ActionRestart},
		{in: "status", wantErr: true},
		{in: "START", wantErr: true},
		{in: "", wantErr: true},
		{in: "stop; rm -rf /", wantErr: true},
	}

	for _, tc := range testCases {
		got, err := ParseAction(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidAction, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestController_Execute(t *testing.T) {
	t.Run("with sudo", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("Run", "sudo", "-n systemctl restart junod").Return("", nil).Once()

		c := NewController("", true, runner, testLogger())
		_, err := c.Execute(context.Background(), ActionRestart)
		require.NoError(t, err)
		assert.Equal(t, "junod", c.Service())
		runner.AssertExpectations(t)
	})

	t.Run("without sudo", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("Run", "systemctl", "stop junod-testnet").Return("", nil).Once()

		c := NewController("junod-testnet", false, runner, testLogger())
		_, err := c.Execute(context.Background(), ActionStop)
		require.NoError(t, err)
		runner.AssertExpectations(t)
	})

	t.Run("invalid action never runs a command", func(t *testing.T) {
		runner := &mockRunner{}
		c := NewController("junod", true, runner, testLogger())

		_, err := c.Execute(context.Background(), Action("enable"))
		assert.ErrorIs(t, err, ErrInvalidAction)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("command failure", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("Run", mock.Anything, mock.Anything).Return("unit not found", errors.New("exit status 5")).Once()

		c := NewController("junod", false, runner, testLogger())
		out, err := c.Execute(context.Background(), ActionStart)
		assert.Error(t, err)
		assert.Equal(t, "unit not found", out)
	})
}
