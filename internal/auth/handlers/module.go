package handlers

import (
	"errors"

	"github.com/brizzai/session-broker/internal/auth/staff"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/kvstore"
	"github.com/brizzai/session-broker/internal/logger"
	"go.uber.org/fx"
	"k8s.io/utils/clock"
)

func newIssuer(cfg *config.Config, clk clock.PassiveClock) (*staff.Issuer, error) {
	issuer, err := staff.New(&cfg.Staff, clk)
	if errors.Is(err, staff.ErrDisabled) {
		logger.Info("Staff credentials disabled")
		return nil, nil
	}
	return issuer, err
}

// Module provides the HTTP handler
var Module = fx.Module("handlers",
	fx.Provide(
		newIssuer,
		func(s *kvstore.RedisStore) HealthChecker { return s },
		NewHandler,
	),
)
