// Command dashboard serves the Galicia home-banking demo: the HTTP API and
// single-page app, the JUNO node status poller and the optional Telegram bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/api"
	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/health"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/lifecycle"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/monitor"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/node"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/session"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/state"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/graceful"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/logger"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	sentryEnabled := false
	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
			Release:     cfg.App.Version,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "sentry disabled: %v\n", err)
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	lg := logger.New(cfg.Logger, sentryEnabled)
	log := lg.Logger
	slog.SetDefault(log)

	log.Info("starting dashboard",
		slog.String("env", cfg.AppEnv),
		slog.String("version", cfg.App.Version),
		slog.String("addr", cfg.Server.Addr()),
		slog.String("node_rpc", cfg.Node.RPCURL),
	)

	config.Watch(v, log, func(next *config.Config) {
		lg.SetLevel(next.Logger.Level)
	})

	state.RegisterTransitionRecorder(metrics.RecordStateTransition)

	shutdown := lifecycle.NewShutdown(log)
	errHandler := apperrors.NewHandler(log, sentryEnabled)

	infra, err := connectInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	if infra.redis != nil {
		shutdown.RegisterPhase(lifecycle.PhaseStorage, "redis", func(context.Context) error { return infra.redis.Close() })
	}

	store, err := newSessionStore(cfg.Session, infra)
	if err != nil {
		return err
	}
	pool := session.NewPool(store, cfg.Session.Key, log)

	client := node.NewClient(node.RPCEndpoints(cfg.Node.RPCURL), cfg.Node.Timeout, log)
	controller := node.NewController(cfg.Node.ServiceName, cfg.Node.UseSudo, node.ExecRunner{}, log)

	pollerOpts := []monitor.Option{
		monitor.WithInterval(cfg.Monitor.Interval),
		monitor.WithLogger(log),
	}
	var system monitor.SystemSource
	if cfg.Monitor.System {
		system = node.NewSystemProbe(node.ExecRunner{}, log)
		pollerOpts = append(pollerOpts, monitor.WithSystemSource(system))
	}
	poller := monitor.New(client, pollerOpts...)

	if cfg.Monitor.Enabled {
		activation := poller.Activate(ctx)
		shutdown.Register("poller", func(context.Context) error {
			activation.Stop()
			return nil
		})
	}

	control, err := newControl(cfg, infra, controller, log, shutdown)
	if err != nil {
		return err
	}

	guard := newGuard(ctx, cfg.RateLimit, infra, log)
	idem := newIdempotency(infra, log)

	checker := health.NewChecker(log)
	if infra.redis != nil {
		checker.AddCheck("redis", health.NewRedisChecker(infra.redis))
	}
	checker.AddOptionalCheck("node", client)
	probes := lifecycle.NewProbes(checker, log)

	if cfg.Bot.Enabled {
		b, fsm, err := newBot(cfg, infra, pool, poller, errHandler, guard, idem, log)
		if err != nil {
			return err
		}
		checker.AddOptionalCheck("telegram", health.NewTelegramChecker(b.Telebot()))
		go metrics.NewStateCollector(fsm, 30*time.Second).Run(ctx)
		go b.Start()
		shutdown.Register("bot", func(context.Context) error {
			b.Stop()
			return nil
		})
	}

	handler := api.NewHandler(api.Deps{
		Sessions:    pool,
		Node:        client,
		System:      system,
		Monitor:     poller,
		Control:     control,
		Probes:      probes,
		Guard:       guard,
		Idempotency: idem,
		ErrHandler:  errHandler,
		Log:         log,
		Server:      cfg.Server,
		Session:     cfg.Session,
		Metrics:     cfg.Metrics,
	})

	srv := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		probes.SetDraining()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return shutdown.Execute(shutdownCtx)
	})

	err = g.Wait()
	log.Info("dashboard stopped")
	_ = lg.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
