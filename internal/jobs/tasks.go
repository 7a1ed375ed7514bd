// Package jobs runs node service actions through an asynq queue so a slow
// systemctl call never holds an HTTP request open.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
)

const TaskTypeNodeControl = "node:control"

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// NodeControlPayload asks the worker to start, stop or restart the node unit.
type NodeControlPayload struct {
	Action      string `json:"action"`
	RequestedBy string `json:"requested_by"`
}

// TaskOptions maps the jobs config onto asynq options.
func TaskOptions(cfg config.JobsConfig) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(cfg.MaxRetry),
		// completed tasks stay visible to the status endpoint
		asynq.Retention(time.Hour),
	}
	if cfg.UniqueTTL > 0 {
		opts = append(opts, asynq.Unique(cfg.UniqueTTL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(cfg.Timeout))
	}
	return opts
}

func NewNodeControlTask(payload NodeControlPayload, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode node control payload: %w", err)
	}

	return asynq.NewTask(TaskTypeNodeControl, data, opts...), nil
}

// Terminal states of an inline request. Queued requests carry asynq's own
// state names, which use the same spelling.
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ControlStatus is the externally visible state of a node control request.
type ControlStatus struct {
	ID          string     `json:"id"`
	Action      string     `json:"action"`
	Queue       string     `json:"queue,omitempty"`
	State       string     `json:"state"`
	Retried     int        `json:"retried"`
	MaxRetry    int        `json:"maxRetry"`
	LastError   string     `json:"lastError,omitempty"`
	Output      string     `json:"output,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func statusFromInfo(info *asynq.TaskInfo) *ControlStatus {
	st := &ControlStatus{
		ID:        info.ID,
		Queue:     info.Queue,
		State:     info.State.String(),
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastErr,
		Output:    string(info.Result),
	}

	var payload NodeControlPayload
	if err := json.Unmarshal(info.Payload, &payload); err == nil {
		st.Action = payload.Action
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		st.CompletedAt = &t
	}
	return st
}
