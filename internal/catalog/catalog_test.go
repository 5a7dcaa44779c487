package catalog

import (
	"testing"

	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCatalog(products ...config.ProductSettings) *Catalog {
	s := config.DefaultSettings()
	s.Catalog.Products = products
	return New(Params{Settings: config.NewStaticSettingsHolder(s), Log: zap.NewNop()})
}

func TestLookup(t *testing.T) {
	c := newTestCatalog(
		config.ProductSettings{ID: "widget-a", Name: "Widget A", UnitRate: "100.00", UnitsPerCase: 12},
		config.ProductSettings{ID: "widget-b", Name: "Widget B", UnitRate: "50", UnitsPerCase: 6},
	)

	entry, ok := c.Lookup(" widget-a ")
	require.True(t, ok)
	assert.Equal(t, "Widget A", entry.Name)
	assert.Equal(t, "100", entry.UnitRate.String())
	assert.Equal(t, 12, entry.UnitsPerCase)

	_, ok = c.Lookup("other")
	assert.False(t, ok)

	_, ok = c.Lookup("")
	assert.False(t, ok)
}

func TestGet_NotFound(t *testing.T) {
	c := newTestCatalog()

	_, err := c.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_SortedByName(t *testing.T) {
	c := newTestCatalog(
		config.ProductSettings{ID: "z", Name: "Zinc", UnitRate: "1"},
		config.ProductSettings{ID: "a", Name: "Alum", UnitRate: "2"},
	)

	entries := c.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "Alum", entries[0].Name)
	assert.Equal(t, "Zinc", entries[1].Name)
}
