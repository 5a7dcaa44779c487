package publish

import (
	"context"

	"github.com/smallbiznis/invoicedesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the Publisher selected by DOCUMENT_STORE.
func Module(cfg config.Config) fx.Option {
	if cfg.Document.Backend == config.DocumentStoreMinio {
		return fx.Module("invoice.publish.minio",
			fx.Provide(provideMinioPublisher),
		)
	}
	return fx.Module("invoice.publish.fs",
		fx.Provide(func(cfg config.Config, log *zap.Logger) Publisher {
			return NewFilesystemPublisher(cfg.Invoice.OutputDir, log)
		}),
	)
}

func provideMinioPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	client, err := NewMinioClient(cfg.Document)
	if err != nil {
		return nil, err
	}
	pub := NewMinioPublisher(client, cfg.Document.MinioBucket, log)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return pub.EnsureBucket(ctx)
		},
	})
	return pub, nil
}
