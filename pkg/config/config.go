package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the banking dashboard and its node monitor.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Node      NodeConfig      `mapstructure:"node"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Session   SessionConfig   `mapstructure:"session"`
	Bot       BotConfig       `mapstructure:"bot"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version"`
}

// ServerConfig configures the HTTP API and the single-page app host.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	StaticDir       string        `mapstructure:"static_dir"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address derived from Port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%s", s.Port)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db" validate:"gte=0"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// NodeConfig points at the local JUNO node and the systemd unit that runs it.
type NodeConfig struct {
	RPCURL      string        `mapstructure:"rpc_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ServiceName string        `mapstructure:"service_name" validate:"required"`
	UseSudo     bool          `mapstructure:"use_sudo"`
}

type MonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	System   bool          `mapstructure:"system"`
}

// SessionConfig selects where the persisted session record lives.
type SessionConfig struct {
	Backend      string        `mapstructure:"backend" validate:"oneof=memory file redis"`
	Dir          string        `mapstructure:"dir"`
	Key          string        `mapstructure:"key" validate:"required"`
	TTL          time.Duration `mapstructure:"ttl" validate:"gte=0"`
	CookieName   string        `mapstructure:"cookie_name" validate:"required"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type BotConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Token           string        `mapstructure:"token" validate:"required_if=Enabled true"`
	Mode            string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout         time.Duration `mapstructure:"timeout"`
	WebhookListen   string        `mapstructure:"webhook_listen"`
	DefaultLanguage string        `mapstructure:"default_language" validate:"oneof=es en"`
}

// RateLimitRule is a limit within a window expressed as a Go duration string.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"gte=0"`
	Window string `mapstructure:"window"`
}

type RateLimitCommands struct {
	Control RateLimitRule `mapstructure:"control"`
	Refresh RateLimitRule `mapstructure:"refresh"`
	Status  RateLimitRule `mapstructure:"status"`
}

type RateLimitConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	Whitelist []int64           `mapstructure:"whitelist"`
	Global    RateLimitRule     `mapstructure:"global"`
	PerUser   RateLimitRule     `mapstructure:"per_user"`
	Commands  RateLimitCommands `mapstructure:"commands"`
}

type JobsConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Concurrency int            `mapstructure:"concurrency" validate:"gte=0"`
	Queues      map[string]int `mapstructure:"queues"`
	MaxRetry    int            `mapstructure:"max_retry" validate:"gte=0"`
	UniqueTTL   time.Duration  `mapstructure:"unique_ttl"`
	Timeout     time.Duration  `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
