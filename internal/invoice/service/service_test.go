package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/catalog"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	invoicedomain "github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/invoice/format"
	"github.com/smallbiznis/invoicedesk/internal/invoice/publish"
	"github.com/smallbiznis/invoicedesk/internal/invoice/render"
	"github.com/smallbiznis/invoicedesk/internal/invoice/repository"
	"github.com/smallbiznis/invoicedesk/internal/metrics"
	"github.com/smallbiznis/invoicedesk/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type failingStore struct {
	invoicedomain.Store
	err error
}

func (f failingStore) Save(context.Context, invoicedomain.InvoiceRecord) (invoicedomain.InvoiceRecord, error) {
	return invoicedomain.InvoiceRecord{}, f.err
}

type countingRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
	next  render.Renderer
}

func (r *countingRenderer) Render(ctx context.Context, rec invoicedomain.InvoiceRecord) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.next.Render(ctx, rec)
}

type fixture struct {
	svc       invoicedomain.Service
	store     invoicedomain.Store
	renderer  *countingRenderer
	outputDir string
	registry  *prometheus.Registry
	clock     *clock.FakeClock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.Catalog.Products = []config.ProductSettings{
		{ID: "soap", Name: "Soap", UnitRate: "100", UnitsPerCase: 12},
		{ID: "shampoo", Name: "Shampoo", UnitRate: "50", UnitsPerCase: 6},
	}
	return s
}

func newFixture(t *testing.T, mutate ...func(*ServiceParam)) *fixture {
	t.Helper()

	dir := t.TempDir()
	settings := config.NewStaticSettingsHolder(testSettings())
	formatter, err := format.NewFormatter(format.DefaultTemplate)
	require.NoError(t, err)

	policy := pricing.DefaultPolicy()
	options := render.StaticOptions(render.OptionsFromSettings(settings.Get().Document, policy, formatter))
	renderer := &countingRenderer{next: render.NewPDFRenderer(options, zap.NewNop())}
	store := repository.NewCSVStore(filepath.Join(dir, "invoices.csv"), 1, nil, zap.NewNop())
	registry := prometheus.NewRegistry()
	ledger := metrics.NewLedger(registry)
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 21, 30, 0, 0, time.UTC))

	outputDir := filepath.Join(dir, "generated_invoices")
	cfg := config.Config{StorageTimeout: time.Second}
	cfg.Invoice.MaxItems = 30

	p := ServiceParam{
		Store:     store,
		Catalog:   catalog.New(catalog.Params{Settings: settings, Log: zap.NewNop()}),
		Renderer:  renderer,
		HTML:      render.NewHTMLRenderer(options),
		Publisher: publish.NewFilesystemPublisher(outputDir, zap.NewNop()),
		Policy:    policy,
		Formatter: formatter,
		Clock:     clk,
		Config:    cfg,
		Log:       zap.NewNop(),
		Ledger:    ledger,
	}
	for _, m := range mutate {
		m(&p)
	}

	return &fixture{
		svc:       NewService(p),
		store:     p.Store,
		renderer:  renderer,
		outputDir: outputDir,
		registry:  registry,
		clock:     clk,
	}
}

func scenarioRequest() invoicedomain.SubmitRequest {
	return invoicedomain.SubmitRequest{
		CustomerName:    "Ali Traders",
		CustomerAddress: "Main Bazaar",
		Items: []invoicedomain.RawItem{
			{ProductName: "Widget A", Quantity: 10, UnitRate: ptr(dec("100")), DiscountPercent: dec("10")},
			{ProductName: "Widget B", Quantity: 5, UnitRate: ptr(dec("50")), DiscountPercent: dec("0")},
		},
	}
}

func TestSubmit_Scenario(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), scenarioRequest())
	require.NoError(t, err)

	inv := res.Invoice
	assert.Equal(t, int64(1), inv.InvoiceNumber)
	assert.Equal(t, "1", res.FormattedNumber)
	assert.Equal(t, "2026-03-14", inv.DateString())
	require.Len(t, inv.Items, 2)
	assert.True(t, dec("900.00").Equal(inv.Items[0].LineTotal))
	assert.True(t, dec("250.00").Equal(inv.Items[1].LineTotal))
	assert.True(t, dec("1150.00").Equal(inv.TotalAmount))

	require.NotNil(t, res.Document)
	assert.Equal(t, "ali-traders_1.pdf", res.Document.FileName)
	assert.True(t, bytes.HasPrefix(res.Document.Bytes, []byte("%PDF")))

	onDisk, err := os.ReadFile(filepath.Join(f.outputDir, "ali-traders_1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, res.Document.Bytes, onDisk)

	stored, err := f.svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, dec("1150.00").Equal(stored.TotalAmount))

	html, err := f.svc.Preview(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, html, "Widget A")
	assert.Contains(t, html, "Widget B")
	assert.Contains(t, html, "1150.00/-")

	assert.Equal(t, 1.0, counterValue(t, f.registry, "invoicedesk_invoices_issued_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestSubmit_DropsZeroQuantityAndNamelessRows(t *testing.T) {
	f := newFixture(t)

	req := scenarioRequest()
	req.Items = append(req.Items,
		invoicedomain.RawItem{ProductName: "Widget C", Quantity: 0, UnitRate: ptr(dec("1"))},
		invoicedomain.RawItem{ProductName: "   ", Quantity: 3, UnitRate: ptr(dec("1"))},
	)

	res, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Invoice.Items, 2)
	for _, item := range res.Invoice.Items {
		assert.Positive(t, item.Quantity)
	}
}

func TestSubmit_ValidationErrorsHaveNoSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*invoicedomain.SubmitRequest)
		field  string
		index  int
	}{
		{"missing customer", func(r *invoicedomain.SubmitRequest) { r.CustomerName = " " }, "customer_name", -1},
		{"missing address", func(r *invoicedomain.SubmitRequest) { r.CustomerAddress = "" }, "customer_address", -1},
		{"no surviving items", func(r *invoicedomain.SubmitRequest) { r.Items[0].Quantity = 0; r.Items[1].Quantity = 0 }, "items", -1},
		{"manual product without rate", func(r *invoicedomain.SubmitRequest) { r.Items[1].UnitRate = nil }, "unit_rate", 1},
		{"discount above 100", func(r *invoicedomain.SubmitRequest) { r.Items[0].DiscountPercent = dec("101") }, "discount_percent", 0},
		{"negative quantity", func(r *invoicedomain.SubmitRequest) { r.Items[1].Quantity = -2 }, "quantity", 1},
		{"negative rate", func(r *invoicedomain.SubmitRequest) { r.Items[0].UnitRate = ptr(dec("-1")) }, "unit_rate", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := scenarioRequest()
			tt.mutate(&req)

			_, err := f.svc.Submit(context.Background(), req)
			var verr *invoicedomain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.index, verr.Index)

			next, err := f.svc.NextNumber(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), next)
			assert.Zero(t, f.renderer.calls)
		})
	}
}

func TestSubmit_TooManyItems(t *testing.T) {
	f := newFixture(t)
	req := scenarioRequest()
	req.Items = nil
	for i := 0; i < 31; i++ {
		req.Items = append(req.Items, invoicedomain.RawItem{ProductName: "Widget", Quantity: 1, UnitRate: ptr(dec("1"))})
	}

	_, err := f.svc.Submit(context.Background(), req)
	var verr *invoicedomain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "too_many", verr.Code)
}

func TestSubmit_CatalogLookupFillsRateAndPacking(t *testing.T) {
	f := newFixture(t)

	req := scenarioRequest()
	req.Items = []invoicedomain.RawItem{
		{ProductID: "soap", Quantity: 2},
		{ProductID: "shampoo", ProductName: "Shampoo 500ml", Quantity: 1, UnitRate: ptr(dec("45"))},
		{ProductID: "unknown", ProductName: "Other thing", Quantity: 1, UnitRate: ptr(dec("7.5")), UnitsPerCase: ptr(4)},
	}

	res, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	items := res.Invoice.Items
	require.Len(t, items, 3)

	assert.Equal(t, "Soap", items[0].ProductName)
	assert.True(t, dec("100").Equal(items[0].UnitRate))
	assert.Equal(t, 12, items[0].UnitsPerCase)

	assert.Equal(t, "Shampoo 500ml", items[1].ProductName)
	assert.True(t, dec("45").Equal(items[1].UnitRate))
	assert.Equal(t, 6, items[1].UnitsPerCase)

	assert.Equal(t, 4, items[2].UnitsPerCase)
	assert.True(t, dec("252.50").Equal(res.Invoice.TotalAmount))
}

func TestSubmit_UnknownProductWithoutRateIsRejected(t *testing.T) {
	f := newFixture(t)
	req := scenarioRequest()
	req.Items = []invoicedomain.RawItem{{ProductID: "missing", ProductName: "Mystery", Quantity: 1}}

	_, err := f.svc.Submit(context.Background(), req)
	var verr *invoicedomain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit_rate", verr.Field)
	assert.Equal(t, 0, verr.Index)
}

func TestSubmit_StorageFailureIssuesNothing(t *testing.T) {
	var base invoicedomain.Store
	f := newFixture(t, func(p *ServiceParam) {
		base = p.Store
		p.Store = failingStore{Store: p.Store, err: errors.New("disk full")}
	})

	_, err := f.svc.Submit(context.Background(), scenarioRequest())
	require.Error(t, err)
	assert.True(t, invoicedomain.IsStorageError(err))
	assert.Zero(t, f.renderer.calls)

	next, err := base.NextInvoiceNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestSubmit_RenderFailureKeepsRecordAndAllowsRetry(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = errors.New("font missing")

	res, err := f.svc.Submit(context.Background(), scenarioRequest())
	var rerr *invoicedomain.RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, int64(1), rerr.InvoiceNumber)
	assert.Equal(t, int64(1), res.Invoice.InvoiceNumber)
	assert.Nil(t, res.Document)

	_, statErr := os.Stat(filepath.Join(f.outputDir, "ali-traders_1.pdf"))
	assert.True(t, os.IsNotExist(statErr))

	f.renderer.mu.Lock()
	f.renderer.err = nil
	f.renderer.mu.Unlock()

	retried, err := f.svc.Render(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, retried.Document)
	assert.FileExists(t, filepath.Join(f.outputDir, "ali-traders_1.pdf"))

	next, err := f.svc.NextNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestSubmit_ConcurrentSubmissionsGetDistinctNumbers(t *testing.T) {
	f := newFixture(t)

	var (
		mu      sync.Mutex
		numbers = map[int64]bool{}
	)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			res, err := f.svc.Submit(context.Background(), scenarioRequest())
			if err != nil {
				return err
			}
			mu.Lock()
			numbers[res.Invoice.InvoiceNumber] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, map[int64]bool{1: true, 2: true}, numbers)
}

func TestGet_UnknownInvoice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	_, err = f.svc.Render(context.Background(), 99)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestList_InsertionOrder(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(context.Background(), scenarioRequest())
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)
	}

	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, rec := range list {
		assert.Equal(t, int64(i+1), rec.InvoiceNumber)
	}
	assert.Equal(t, "2026-03-16", list[2].DateString())
}
