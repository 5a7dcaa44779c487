package invoice

import (
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/format"
	"github.com/smallbiznis/invoicedesk/internal/invoice/publish"
	"github.com/smallbiznis/invoicedesk/internal/invoice/render"
	"github.com/smallbiznis/invoicedesk/internal/invoice/repository"
	"github.com/smallbiznis/invoicedesk/internal/invoice/service"
	"github.com/smallbiznis/invoicedesk/internal/pricing"
	"go.uber.org/fx"
)

// Module assembles the invoice workflow around the store and document
// backends selected in cfg.
func Module(cfg config.Config) fx.Option {
	return fx.Module("invoice.service",
		repository.Module(cfg),
		publish.Module(cfg),
		render.Module,
		fx.Provide(func(cfg config.Config) pricing.Policy {
			return pricing.NewPolicy(cfg.CurrencyPlaces)
		}),
		fx.Provide(func(cfg config.Config) (*format.Formatter, error) {
			return format.NewFormatter(cfg.Invoice.NumberTemplate)
		}),
		fx.Provide(service.NewService),
	)
}
