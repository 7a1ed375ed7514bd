// Package handlers holds the asynq task handlers.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/jobs"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/node"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

type NodeControlHandler struct {
	executor jobs.Executor
	log      *slog.Logger
}

func NewNodeControlHandler(executor jobs.Executor, log *slog.Logger) *NodeControlHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NodeControlHandler{executor: executor, log: log}
}

// ProcessTask runs systemctl for the requested action. Bad payloads are not retried.
func (h *NodeControlHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.NodeControlPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "node control: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	action, err := node.ParseAction(payload.Action)
	if err != nil {
		metrics.RecordNodeControl(payload.Action, "invalid")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	h.log.InfoContext(ctx, "node control: executing",
		slog.String("action", string(action)),
		slog.String("requested_by", payload.RequestedBy),
	)

	out, err := h.executor.Execute(ctx, action)
	if err != nil {
		metrics.RecordNodeControl(string(action), "error")
		return fmt.Errorf("node %s: %w", action, err)
	}

	metrics.RecordNodeControl(string(action), "ok")

	if w := t.ResultWriter(); w != nil {
		if _, err := w.Write([]byte(strings.TrimSpace(out))); err != nil {
			h.log.WarnContext(ctx, "node control: failed to store result", slog.Any("error", err))
		}
	}
	return nil
}
