// Package graceful runs an http.Server until its context ends and then drains it.
package graceful

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultDrain = 10 * time.Second

// Server drains in-flight requests for up to drain once its context ends.
type Server struct {
	srv   *http.Server
	log   *slog.Logger
	drain time.Duration
}

func NewServer(log *slog.Logger, srv *http.Server, drain time.Duration) *Server {
	if log == nil {
		log = slog.Default()
	}
	if drain <= 0 {
		drain = defaultDrain
	}
	return &Server{srv: srv, log: log, drain: drain}
}

// ListenAndServe binds srv.Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve blocks until ctx ends or serving fails. Either way the server is shut
// down before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.srv == nil {
		return ln.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http server listening", slog.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", slog.Any("error", err))
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.drain)
		defer cancel()

		s.log.Info("shutting down http server", slog.Duration("timeout", s.drain))
		if err := s.srv.Shutdown(drainCtx); err != nil {
			s.log.Error("http server shutdown error", slog.Any("error", err))
			return err
		}
		return nil
	})

	return g.Wait()
}
