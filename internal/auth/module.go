package auth

import (
	"github.com/brizzai/session-broker/internal/auth/providers"
	"github.com/brizzai/session-broker/internal/auth/session"
	"github.com/brizzai/session-broker/internal/auth/state"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/entropy"
	"github.com/brizzai/session-broker/internal/kvstore"
	"go.uber.org/fx"
	"k8s.io/utils/clock"
)

func newSessionStore(kv kvstore.Store, source entropy.Source, provider providers.Provider, clk clock.PassiveClock, cfg *config.Config) *session.Store {
	return session.NewStore(kv, source, provider, clk, &cfg.Session, session.WithIDPath(cfg.OAuth.IDPath()))
}

// Module wires the session lifecycle: clock, state manager, session store and
// the Service on top of them
var Module = fx.Module("auth",
	providers.Module,
	fx.Provide(
		func() clock.PassiveClock { return clock.RealClock{} },
		state.NewManager,
		newSessionStore,
		NewService,
	),
)
