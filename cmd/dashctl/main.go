// Command dashctl signs in to the Galicia demo and watches the JUNO node from
// a terminal. It shares the persisted session record with the dashboard when
// both use the file backend.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/session"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dashctl:", err)
		os.Exit(1)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "dashctl",
		Usage:     "Galicia demo session and JUNO node status from the terminal",
		Version:   "dev",
		Reader:    in,
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "session-dir",
				Usage:   "directory holding the persisted session record",
				Sources: cli.EnvVars("SESSION_DIR"),
			},
			&cli.StringFlag{
				Name:    "session-key",
				Value:   session.DefaultKey,
				Usage:   "storage key of the session record",
				Sources: cli.EnvVars("SESSION_KEY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "debug, info, warn or error",
				Sources: cli.EnvVars("LOGGER_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			loginCommand,
			logoutCommand,
			whoamiCommand,
			statusCommand,
			watchCommand,
		},
	}
}

func newLogger(cmd *cli.Command) *slog.Logger {
	return logger.NewWithWriter(cmd.Root().ErrWriter, config.LoggerConfig{
		Level:  cmd.String("log-level"),
		Format: "text",
	}, false).Logger
}

// openSession restores the persisted record from the file store.
func openSession(ctx context.Context, cmd *cli.Command) (*session.Manager, error) {
	dir := cmd.String("session-dir")
	if dir == "" {
		d, err := session.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	store, err := session.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	mgr := session.NewManager(store,
		session.WithKey(cmd.String("session-key")),
		session.WithLogger(newLogger(cmd)),
	)
	mgr.Restore(ctx)
	return mgr, nil
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

const clockLayout = "15:04:05"

func formatTime(t *time.Time) string {
	if t == nil {
		return "nunca"
	}
	return t.Local().Format(clockLayout)
}
