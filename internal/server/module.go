package server

import (
	"context"

	"github.com/brizzai/session-broker/internal/auth/handlers"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newServer(cfg *config.Config, h *handlers.Handler) *Server {
	return NewServer(&cfg.Server, h.Routes())
}

// run ties the listener to the fx lifecycle. A listener failure shuts the
// whole application down.
func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, s *Server) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := s.Start(ctx); err != nil {
					logger.Error("Server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Module provides the HTTP server and starts it with the application
var Module = fx.Module("server",
	fx.Provide(newServer),
	fx.Invoke(run),
)
