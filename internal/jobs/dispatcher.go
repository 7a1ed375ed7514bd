package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/node"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

// ErrDuplicateRequest is returned while an identical control request is still unique-locked.
var ErrDuplicateRequest = errors.New("an identical node control request is already queued")

// Dispatcher accepts node control requests and reports on them.
type Dispatcher interface {
	Dispatch(ctx context.Context, action node.Action, requestedBy string) (*ControlStatus, error)
	Status(ctx context.Context, id string) (*ControlStatus, error)
}

// QueueDispatcher enqueues node:control tasks for the worker.
type QueueDispatcher struct {
	manager Manager
	opts    []asynq.Option
}

func NewQueueDispatcher(manager Manager, opts ...asynq.Option) *QueueDispatcher {
	return &QueueDispatcher{manager: manager, opts: opts}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, action node.Action, requestedBy string) (*ControlStatus, error) {
	task, err := NewNodeControlTask(NodeControlPayload{Action: string(action), RequestedBy: requestedBy}, d.opts...)
	if err != nil {
		return nil, err
	}

	info, err := d.manager.Enqueue(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}

	metrics.RecordNodeControl(string(action), "queued")
	return statusFromInfo(info), nil
}

func (d *QueueDispatcher) Status(_ context.Context, id string) (*ControlStatus, error) {
	info, err := d.manager.TaskInfo(QueueCritical, id)
	if err != nil {
		return nil, err
	}
	return statusFromInfo(info), nil
}

// Executor runs a node action.
type Executor interface {
	Execute(ctx context.Context, action node.Action) (string, error)
}

// InlineDispatcher runs the action in the caller's goroutine. It is used
// when Redis-backed jobs are disabled and keeps the last results in memory.
type InlineDispatcher struct {
	executor Executor
	log      *slog.Logger

	mu      sync.Mutex
	results map[string]*ControlStatus
	order   []string
	keep    int
}

func NewInlineDispatcher(executor Executor, log *slog.Logger) *InlineDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &InlineDispatcher{
		executor: executor,
		log:      log,
		results:  make(map[string]*ControlStatus),
		keep:     100,
	}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, action node.Action, requestedBy string) (*ControlStatus, error) {
	st := &ControlStatus{ID: uuid.NewString(), Action: string(action)}

	out, err := d.executor.Execute(ctx, action)
	now := time.Now()
	st.Output = strings.TrimSpace(out)
	if err != nil {
		st.State = StateFailed
		st.LastError = err.Error()
		metrics.RecordNodeControl(string(action), "error")
		d.log.WarnContext(ctx, "node control failed",
			slog.String("action", string(action)),
			slog.String("requested_by", requestedBy),
			slog.Any("error", err),
		)
	} else {
		st.State = StateCompleted
		st.CompletedAt = &now
		metrics.RecordNodeControl(string(action), "ok")
	}

	d.remember(st)

	cp := *st
	if err != nil {
		return &cp, fmt.Errorf("node %s: %w", action, err)
	}
	return &cp, nil
}

func (d *InlineDispatcher) Status(_ context.Context, id string) (*ControlStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.results[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *st
	return &cp, nil
}

func (d *InlineDispatcher) remember(st *ControlStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.results[st.ID] = st
	d.order = append(d.order, st.ID)
	if len(d.order) > d.keep {
		delete(d.results, d.order[0])
		d.order = d.order[1:]
	}
}
