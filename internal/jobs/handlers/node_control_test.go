package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/jobs"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/node"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, action node.Action) (string, error) {
	args := m.Called(action)
	return args.String(0), args.Error(1)
}

func newTask(t *testing.T, action string) *asynq.Task {
	t.Helper()
	task, err := jobs.NewNodeControlTask(jobs.NodeControlPayload{Action: action, RequestedBy: "Fei"})
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestNodeControlHandler_ProcessTask(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name      string
		task      func(t *testing.T) *asynq.Task
		setup     func(e *mockExecutor)
		wantErr   bool
		skipRetry bool
	}{
		{
			name:  "restart succeeds",
			task:  func(t *testing.T) *asynq.Task { return newTask(t, "restart") },
			setup: func(e *mockExecutor) { e.On("Execute", node.ActionRestart).Return("", nil).Once() },
		},
		{
			name:    "systemctl failure is retried",
			task:    func(t *testing.T) *asynq.Task { return newTask(t, "start") },
			setup:   func(e *mockExecutor) { e.On("Execute", node.ActionStart).Return("", errors.New("exit status 1")).Once() },
			wantErr: true,
		},
		{
			name:      "unknown action is not retried",
			task:      func(t *testing.T) *asynq.Task { return newTask(t, "reboot") },
			setup:     func(*mockExecutor) {},
			wantErr:   true,
			skipRetry: true,
		},
		{
			name: "garbage payload is not retried",
			task: func(*testing.T) *asynq.Task {
				return asynq.NewTask(jobs.TaskTypeNodeControl, []byte("{"))
			},
			setup:     func(*mockExecutor) {},
			wantErr:   true,
			skipRetry: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			executor := &mockExecutor{}
			tc.setup(executor)

			err := NewNodeControlHandler(executor, log).ProcessTask(context.Background(), tc.task(t))

			if !tc.wantErr {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
			}
			executor.AssertExpectations(t)
		})
	}
}
