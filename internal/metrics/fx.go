package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics",
	fx.Provide(NewRegistry),
	fx.Provide(func(r *prometheus.Registry) prometheus.Registerer { return r }),
	fx.Provide(func(r *prometheus.Registry) prometheus.Gatherer { return r }),
	fx.Provide(NewLedger),
	fx.Provide(NewJobs),
	fx.Provide(NewPusher),
	fx.Invoke(startPushLoop),
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func startPushLoop(lc fx.Lifecycle, cfg config.Config, pusher Pusher, gatherer prometheus.Gatherer, log *zap.Logger) {
	if pusher == nil {
		return
	}
	interval := cfg.Metrics.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push loop", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						pushCtx, pushCancel := context.WithTimeout(ctx, defaultPushTimeout)
						if err := pusher.Push(pushCtx, gatherer); err != nil {
							log.Warn("metrics push failed", zap.Error(err))
						}
						pushCancel()
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			final, finalCancel := context.WithTimeout(context.Background(), defaultPushTimeout)
			defer finalCancel()
			if err := pusher.Push(final, gatherer); err != nil {
				log.Warn("final metrics push failed", zap.Error(err))
			}
			return nil
		},
	})
}
