package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"go.uber.org/fx"
)

var LocalModule = fx.Module("lock.local",
	fx.Provide(func() Locker { return NewLocalLocker() }),
)

// RedisModule provides the shared redis client and a Locker backed by it.
var RedisModule = fx.Module("lock.redis",
	fx.Provide(provideRedisClient),
	fx.Provide(func(client *redis.Client, cfg config.Config) Locker {
		return NewRedisLocker(client, cfg.Redis.KeyPrefix, 0)
	}),
)

func provideRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := NewRedisClient(cfg)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}
