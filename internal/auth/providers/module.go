package providers

import (
	"context"

	"github.com/brizzai/session-broker/internal/config"
	"go.uber.org/fx"
	"k8s.io/utils/clock"
)

func newProvider(cfg *config.Config, clk clock.PassiveClock) (*OAuth2Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	return NewProvider(ctx, cfg, clk)
}

// Module provides the identity provider
var Module = fx.Module("providers",
	fx.Provide(
		fx.Annotate(
			newProvider,
			fx.As(new(Provider)),
		),
	),
)
