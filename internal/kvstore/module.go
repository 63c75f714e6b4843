package kvstore

import (
	"context"

	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newClient(lc fx.Lifecycle, cfg *config.Config) (redis.UniversalClient, error) {
	client, err := NewRedisClient(context.Background(), &cfg.Store)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("Closing redis client", zap.String("addr", cfg.Store.Addr))
			return client.Close()
		},
	})
	return client, nil
}

func newStore(client redis.UniversalClient, cfg *config.Config) *RedisStore {
	return NewRedisStore(client, cfg.Store.KeyPrefix)
}

// Module provides the Redis client and the Store built on it
var Module = fx.Module("kvstore",
	fx.Provide(
		newClient,
		fx.Annotate(
			newStore,
			fx.As(fx.Self()),
			fx.As(new(Store)),
		),
	),
)
