package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
)

// Commands with their own limits on top of the per-user rule.
const (
	CommandControl = "control"
	CommandRefresh = "refresh"
	CommandStatus  = "status"
)

var (
	// ErrUnknownCommand is returned for commands without a dedicated rule.
	ErrUnknownCommand = errors.New("no rate limit rule for command")
	// ErrRuleNotSet is returned for a rule left empty in configuration.
	ErrRuleNotSet = errors.New("rate limit rule is not set")
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether limits should be enforced at all.
func (r *Rules) Enabled() bool {
	return r != nil && r.config.Enabled
}

// IsWhitelisted returns true if the Telegram user bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	if userID == 0 {
		return false
	}
	for _, id := range r.config.Whitelist {
		if id == userID {
			return true
		}
	}
	return false
}

// GetCommandLimit returns the limit and window for a specific command.
func (r *Rules) GetCommandLimit(command string) (int, time.Duration, error) {
	switch command {
	case CommandControl:
		return parseRule(r.config.Commands.Control)
	case CommandRefresh:
		return parseRule(r.config.Commands.Refresh)
	case CommandStatus:
		return parseRule(r.config.Commands.Status)
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// GetGlobalLimit returns the global rate limiting rule.
func (r *Rules) GetGlobalLimit() (int, time.Duration, error) {
	return parseRule(r.config.Global)
}

// GetPerUserLimit returns the per-user rate limiting rule.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		if rule.Limit == 0 {
			return 0, 0, ErrRuleNotSet
		}
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		return 0, 0, fmt.Errorf("window must be positive, got %s", rule.Window)
	}
	return rule.Limit, window, nil
}
