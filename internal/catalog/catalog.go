package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("product_not_found")

// Entry is a known product with its default pricing and packing.
type Entry struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	UnitRate     decimal.Decimal `json:"unit_rate"`
	UnitsPerCase int             `json:"units_per_case"`
}

type Params struct {
	fx.In

	Settings *config.SettingsHolder
	Log      *zap.Logger
}

// Catalog is a read-only view over the configured product table. Each
// lookup reads the current settings so reloads take effect immediately.
type Catalog struct {
	settings *config.SettingsHolder
	log      *zap.Logger
}

func New(p Params) *Catalog {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		settings: p.Settings,
		log:      log.Named("catalog"),
	}
}

// Lookup returns the entry for productID. A miss is not an error for the
// caller: it falls back to manually entered rate and packing.
func (c *Catalog) Lookup(productID string) (Entry, bool) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Entry{}, false
	}
	for _, p := range c.settings.Get().Catalog.Products {
		if strings.TrimSpace(p.ID) != id {
			continue
		}
		entry, err := toEntry(p)
		if err != nil {
			c.log.Warn("catalog entry unreadable", zap.String("product_id", id), zap.Error(err))
			return Entry{}, false
		}
		return entry, true
	}
	return Entry{}, false
}

func (c *Catalog) Get(productID string) (Entry, error) {
	entry, ok := c.Lookup(productID)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (c *Catalog) List() []Entry {
	products := c.settings.Get().Catalog.Products
	out := make([]Entry, 0, len(products))
	for _, p := range products {
		entry, err := toEntry(p)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func toEntry(p config.ProductSettings) (Entry, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.UnitRate))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:           strings.TrimSpace(p.ID),
		Name:         strings.TrimSpace(p.Name),
		UnitRate:     rate,
		UnitsPerCase: p.UnitsPerCase,
	}, nil
}
