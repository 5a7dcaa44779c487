package render

import (
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/format"
	"github.com/smallbiznis/invoicedesk/internal/pricing"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.render",
	fx.Provide(NewOptionsFunc),
	fx.Provide(
		fx.Annotate(NewPDFRenderer, fx.As(new(Renderer))),
	),
	fx.Provide(NewHTMLRenderer),
)

type OptionsParams struct {
	fx.In

	Settings  *config.SettingsHolder
	Policy    pricing.Policy
	Formatter *format.Formatter
}

func NewOptionsFunc(p OptionsParams) OptionsFunc {
	return func() Options {
		return OptionsFromSettings(p.Settings.Get().Document, p.Policy, p.Formatter)
	}
}
