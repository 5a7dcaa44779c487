package repository

import (
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/lock"
	"github.com/smallbiznis/invoicedesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module wires the Store backend selected by INVOICE_STORE.
func Module(cfg config.Config) fx.Option {
	switch cfg.Invoice.Store {
	case config.StoreSQL:
		return fx.Module("invoice.store.sql",
			db.Module,
			fx.Provide(provideSQLStore),
		)
	case config.StoreRedis:
		return fx.Module("invoice.store.redis",
			lock.RedisModule,
			fx.Provide(provideRedisStore),
		)
	default:
		locks := lock.LocalModule
		if cfg.Invoice.CSVLock == config.LockRedis {
			locks = lock.RedisModule
		}
		return fx.Module("invoice.store.csv",
			locks,
			fx.Provide(provideCSVStore),
		)
	}
}

func provideSQLStore(conn *gorm.DB, genID *snowflake.Node, cfg config.Config, log *zap.Logger) domain.Store {
	return NewSQLStore(conn, genID, cfg.Invoice.StartNumber, log)
}

func provideRedisStore(client *redis.Client, cfg config.Config, log *zap.Logger) domain.Store {
	return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Invoice.StartNumber, log)
}

func provideCSVStore(locker lock.Locker, cfg config.Config, log *zap.Logger) domain.Store {
	return NewCSVStore(cfg.Invoice.CSVPath, cfg.Invoice.StartNumber, locker, log)
}
