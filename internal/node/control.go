package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Action is a systemctl verb accepted for the node unit.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ErrInvalidAction rejects anything other than start, stop and restart.
var ErrInvalidAction = errors.New("invalid action")

// ParseAction validates a user-supplied action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.TrimSpace(s)); a {
	case ActionStart, ActionStop, ActionRestart:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// Controller starts, stops and restarts the node's systemd unit.
type Controller struct {
	service string
	useSudo bool
	runner  Runner
	log     *slog.Logger
}

func NewController(service string, useSudo bool, runner Runner, log *slog.Logger) *Controller {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = slog.Default()
	}
	if service == "" {
		service = "junod"
	}

	return &Controller{service: service, useSudo: useSudo, runner: runner, log: log}
}

// Execute runs systemctl <action> <service> and returns its output.
func (c *Controller) Execute(ctx context.Context, action Action) (string, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return "", err
	}

	name, args := "systemctl", []string{string(action), c.service}
	if c.useSudo {
		name, args = "sudo", append([]string{"-n", "systemctl"}, args...)
	}

	c.log.Info("node control", slog.String("action", string(action)), slog.String("service", c.service))

	out, err := c.runner.Run(ctx, name, args...)
	if err != nil {
		c.log.Error("node control failed", slog.String("action", string(action)), slog.Any("error", err))
		return out, err
	}
	return out, nil
}

func (c *Controller) Service() string {
	return c.service
}
