package ratelimit

import (
	"context"

	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/lock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideSubmitLimiter),
)

// provideSubmitLimiter returns nil when RATE_LIMIT_ENABLED is off. The
// limiter keeps its own Redis client so it works with any store backend.
func provideSubmitLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*SubmitLimiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}

	client := lock.NewRedisClient(cfg)
	rate, burst := cfg.RateLimit.SubmitRate, cfg.RateLimit.SubmitBurst
	limiter, err := NewSubmitLimiter(client, cfg.Redis.KeyPrefix, rate, burst)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Named("ratelimit").Info("submit rate limit enabled",
				zap.Float64("rate", rate),
				zap.Int("burst", burst),
			)
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return limiter, nil
}
