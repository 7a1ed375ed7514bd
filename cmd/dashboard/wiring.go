package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/handlers"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/i18n"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/idempotency"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/jobs"
	jobhandlers "github.com/NoaSEED/juno-starknet-node-setup/internal/jobs/handlers"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/lifecycle"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/ratelimit"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/session"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/state"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
	pkgredis "github.com/NoaSEED/juno-starknet-node-setup/pkg/redis"
)

const (
	limiterSweepInterval = time.Minute
	limiterMaxAge        = 10 * time.Minute
	fsmTTL               = 30 * time.Minute
)

// infra holds the shared connections. redis is nil when Redis is disabled.
type infra struct {
	redis    *pkgredis.Client
	redisOpt asynq.RedisClientOpt
}

func (in *infra) redisClient() *goredis.Client {
	if in == nil || in.redis == nil {
		return nil
	}
	return in.redis.Client
}

func connectInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if !cfg.Redis.Enabled {
		if cfg.Session.Backend == "redis" {
			return nil, fmt.Errorf("session backend redis requires redis.enabled")
		}
		return in, nil
	}

	err := apperrors.WithRetry(ctx, func() error {
		c, err := pkgredis.New(ctx, cfg.Redis)
		if err != nil {
			return apperrors.NewStorageError(err)
		}
		in.redis = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	in.redisOpt = asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	log.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	return in, nil
}

func newSessionStore(cfg config.SessionConfig, in *infra) (session.Store, error) {
	switch cfg.Backend {
	case "file":
		dir := cfg.Dir
		if dir == "" {
			d, err := session.DefaultDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		return session.NewFileStore(dir)
	case "redis":
		return session.NewRedisStore(pkgredis.NewMetricsClient(in.redis), cfg.TTL), nil
	default:
		return session.NewMemoryStore(), nil
	}
}

// newControl queues node control through asynq when jobs are enabled and
// Redis is available, and runs it inline otherwise.
func newControl(cfg *config.Config, in *infra, executor jobs.Executor, log *slog.Logger, shutdown *lifecycle.Shutdown) (jobs.Dispatcher, error) {
	if !cfg.Jobs.Enabled || in.redis == nil {
		log.Info("node control runs inline")
		return jobs.NewInlineDispatcher(executor, log), nil
	}

	manager := jobs.NewManager(in.redisOpt, log)
	worker := jobs.NewWorker(in.redisOpt, cfg.Jobs, log)
	worker.RegisterHandler(jobs.TaskTypeNodeControl, jobhandlers.NewNodeControlHandler(executor, log))
	if err := worker.Start(); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("start job worker: %w", err)
	}

	shutdown.RegisterPhase(lifecycle.PhaseWorkers, "jobs", func(context.Context) error {
		worker.Shutdown()
		return manager.Close()
	})

	log.Info("node control queued through asynq", slog.Int("concurrency", cfg.Jobs.Concurrency))
	return jobs.NewQueueDispatcher(manager, jobs.TaskOptions(cfg.Jobs)...), nil
}

func newGuard(ctx context.Context, cfg config.RateLimitConfig, in *infra, log *slog.Logger) *ratelimit.Guard {
	if !cfg.Enabled {
		return nil
	}

	memory := ratelimit.NewMemoryLimiter(log)
	go ratelimit.NewCleaner(memory, limiterSweepInterval, limiterMaxAge, log).Run(ctx)

	var limiter ratelimit.Limiter = memory
	if in.redis != nil {
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(in.redisClient(), log), memory, log)
	}
	return ratelimit.NewGuard(limiter, ratelimit.NewRules(cfg), log)
}

func newIdempotency(in *infra, log *slog.Logger) idempotency.Manager {
	if in.redis != nil {
		return idempotency.NewManager(idempotency.NewRedisStore(in.redisClient(), log), log)
	}
	return idempotency.NewManager(idempotency.NewMemoryStore(), log)
}

func newBot(
	cfg *config.Config,
	in *infra,
	pool *session.Pool,
	poller *monitor.Poller,
	errHandler *apperrors.Handler,
	guard *ratelimit.Guard,
	idem idempotency.Manager,
	log *slog.Logger,
) (*bot.Bot, state.StateMachine, error) {
	catalog, err := i18n.Load(cfg.Bot.DefaultLanguage)
	if err != nil {
		return nil, nil, err
	}

	var storage state.Storage = state.NewMemoryStorage()
	lockClient := in.redisClient()
	if lockClient != nil {
		storage = state.NewRedisStorage(lockClient, fsmTTL, log)
	}
	fsm := state.NewStateMachine(storage, log, lockClient)

	b, err := bot.New(cfg.Bot, &handlers.Deps{
		Sessions: pool,
		FSM:      fsm,
		Monitor:  poller,
		I18n:     catalog,
		Keyboard: keyboard.NewBuilder(log),
		Log:      log,
	}, errHandler, guard, idem)
	if err != nil {
		return nil, nil, fmt.Errorf("create bot: %w", err)
	}
	return b, fsm, nil
}
