package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicedesk/internal/catalog"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice"
	"github.com/smallbiznis/invoicedesk/internal/metrics"
	"github.com/smallbiznis/invoicedesk/internal/migration"
	"github.com/smallbiznis/invoicedesk/internal/observability"
	"github.com/smallbiznis/invoicedesk/internal/scheduler"
	"github.com/smallbiznis/invoicedesk/internal/server"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()

	opts := []fx.Option{
		// Core Infrastructure
		config.Module,
		observability.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,

		// Functional Domains
		catalog.Module,
		invoice.Module(cfg),
		scheduler.Module,
		server.Module,
	}
	if cfg.Invoice.Store == config.StoreSQL {
		opts = append(opts, migration.Module)
	}

	fx.New(opts...).Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
