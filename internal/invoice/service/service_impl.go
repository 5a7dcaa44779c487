package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/catalog"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	invoicedomain "github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/invoice/format"
	"github.com/smallbiznis/invoicedesk/internal/invoice/publish"
	"github.com/smallbiznis/invoicedesk/internal/invoice/render"
	"github.com/smallbiznis/invoicedesk/internal/metrics"
	obscontext "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"github.com/smallbiznis/invoicedesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"github.com/smallbiznis/invoicedesk/internal/observability/tracing"
	"github.com/smallbiznis/invoicedesk/internal/pricing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeOK         = "ok"
	outcomeValidation = "validation_error"
	outcomeStorage    = "storage_error"
	outcomeRender     = "render_error"
)

type ServiceParam struct {
	fx.In

	Store     invoicedomain.Store
	Catalog   *catalog.Catalog
	Renderer  render.Renderer
	HTML      *render.HTMLRenderer
	Publisher publish.Publisher
	Policy    pricing.Policy
	Formatter *format.Formatter
	Clock     clock.Clock
	Config    config.Config
	Log       *zap.Logger

	Ledger  *metrics.Ledger     `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store     invoicedomain.Store
	catalog   *catalog.Catalog
	renderer  render.Renderer
	html      *render.HTMLRenderer
	publisher publish.Publisher
	policy    pricing.Policy
	formatter *format.Formatter
	clock     clock.Clock
	log       *zap.Logger
	tracer    trace.Tracer
	ledger    *metrics.Ledger
	metrics   *obsmetrics.Metrics

	maxItems       int
	storageTimeout time.Duration
}

func NewService(p ServiceParam) invoicedomain.Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	maxItems := p.Config.Invoice.MaxItems
	if maxItems <= 0 {
		maxItems = 30
	}
	timeout := p.Config.StorageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Service{
		store:     p.Store,
		catalog:   p.Catalog,
		renderer:  p.Renderer,
		html:      p.HTML,
		publisher: p.Publisher,
		policy:    p.Policy,
		formatter: p.Formatter,
		clock:     clk,
		log:       log.Named("invoice.service"),
		tracer:    otel.Tracer("invoicedesk/invoice"),
		ledger:    p.Ledger,
		metrics:   p.Metrics,

		maxItems:       maxItems,
		storageTimeout: timeout,
	}
}

// Submit validates and prices req, commits it to the store and renders
// the document. A RenderError is returned together with the committed
// record so the caller can retry rendering later.
func (s *Service) Submit(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.SubmitResult, error) {
	ctx, _ = obscontext.EnsureCorrelationID(ctx)
	ctx, span := s.tracer.Start(ctx, "invoice.submit")
	defer span.End()

	draft, err := s.buildRecord(req)
	if err != nil {
		var verr *invoicedomain.ValidationError
		if errors.As(err, &verr) {
			s.ledger.ValidationFailed(verr.Code)
		}
		s.metrics.RecordSubmission(ctx, outcomeValidation)
		span.SetStatus(codes.Error, outcomeValidation)
		return invoicedomain.SubmitResult{}, err
	}
	span.SetAttributes(tracing.SafeAttributes(
		attribute.Int("invoice.items", len(draft.Items)),
		attribute.String("customer_name", draft.CustomerName),
	)...)

	saved, err := s.save(ctx, draft)
	if err != nil {
		s.metrics.RecordSubmission(ctx, outcomeStorage)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcomeStorage)
		return invoicedomain.SubmitResult{}, err
	}

	ctx = obscontext.WithInvoiceNumber(ctx, saved.InvoiceNumber)
	span.SetAttributes(attribute.Int64("invoice.number", saved.InvoiceNumber))
	s.ledger.InvoiceIssued(s.store.Backend(), saved.InvoiceNumber, saved.TotalAmount)

	log := logger.WithContext(ctx, s.log)
	log.Info("invoice issued",
		zap.String("backend", s.store.Backend()),
		zap.Int("items", len(saved.Items)),
		zap.String("total", s.policy.FormatAmount(saved.TotalAmount)),
	)

	result := invoicedomain.SubmitResult{
		Invoice:         saved,
		FormattedNumber: s.formatNumber(saved),
	}

	doc, err := s.renderAndPublish(ctx, saved)
	if err != nil {
		s.metrics.RecordSubmission(ctx, outcomeRender)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcomeRender)
		log.Error("invoice committed but not rendered", zap.Error(err))
		return result, err
	}

	result.Document = doc
	s.metrics.RecordSubmission(ctx, outcomeOK)
	return result, nil
}

// NextNumber is advisory; the number is only assigned by Save.
func (s *Service) NextNumber(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.store.NextInvoiceNumber(ctx)
	s.metrics.RecordStore(ctx, time.Since(start), s.store.Backend(), "next_number")
	if err != nil {
		return 0, s.storageError("next_number", err)
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, invoiceNumber int64) (invoicedomain.InvoiceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	rec, err := s.store.Get(ctx, invoiceNumber)
	if errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
		return invoicedomain.InvoiceRecord{}, err
	}
	if err != nil {
		return invoicedomain.InvoiceRecord{}, s.storageError("get", err)
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context) ([]invoicedomain.InvoiceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, s.storageError("list", err)
	}
	return records, nil
}

// Render re-renders and republishes a stored invoice.
func (s *Service) Render(ctx context.Context, invoiceNumber int64) (invoicedomain.SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "invoice.render", trace.WithAttributes(attribute.Int64("invoice.number", invoiceNumber)))
	defer span.End()

	rec, err := s.Get(ctx, invoiceNumber)
	if err != nil {
		span.SetStatus(codes.Error, "load")
		return invoicedomain.SubmitResult{}, err
	}

	ctx = obscontext.WithInvoiceNumber(ctx, rec.InvoiceNumber)
	result := invoicedomain.SubmitResult{Invoice: rec, FormattedNumber: s.formatNumber(rec)}

	doc, err := s.renderAndPublish(ctx, rec)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcomeRender)
		return result, err
	}
	result.Document = doc
	return result, nil
}

func (s *Service) Preview(ctx context.Context, invoiceNumber int64) (string, error) {
	rec, err := s.Get(ctx, invoiceNumber)
	if err != nil {
		return "", err
	}
	if s.html == nil {
		return "", &invoicedomain.RenderError{InvoiceNumber: invoiceNumber, Reason: "preview_unavailable"}
	}
	return s.html.RenderHTML(rec)
}

// buildRecord filters and prices raw items. Nothing is persisted here.
func (s *Service) buildRecord(req invoicedomain.SubmitRequest) (invoicedomain.InvoiceRecord, error) {
	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		return invoicedomain.InvoiceRecord{}, invoicedomain.NewValidationError("customer_name", "required", "customer name is required")
	}
	address := strings.TrimSpace(req.CustomerAddress)
	if address == "" {
		return invoicedomain.InvoiceRecord{}, invoicedomain.NewValidationError("customer_address", "required", "customer address is required")
	}

	items := make([]invoicedomain.LineItem, 0, len(req.Items))
	for i, raw := range req.Items {
		item, keep, err := s.priceItem(i, raw)
		if err != nil {
			return invoicedomain.InvoiceRecord{}, err
		}
		if keep {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		return invoicedomain.InvoiceRecord{}, invoicedomain.NewValidationError("items", "required", "at least one item with a product name and a positive quantity is required")
	}
	if len(items) > s.maxItems {
		return invoicedomain.InvoiceRecord{}, invoicedomain.NewValidationError("items", "too_many", fmt.Sprintf("invoice is full: at most %d items", s.maxItems))
	}

	totals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		totals = append(totals, item.LineTotal)
	}

	return invoicedomain.InvoiceRecord{
		CustomerName:    customer,
		CustomerAddress: address,
		OrderBookerName: strings.TrimSpace(req.OrderBookerName),
		Items:           items,
		TotalAmount:     s.policy.ComputeInvoiceTotal(totals),
		Date:            clock.CivilDate(s.clock.Now()),
	}, nil
}

// priceItem resolves one raw item against the catalog and prices it.
// keep is false for rows without a product name or with zero quantity.
func (s *Service) priceItem(index int, raw invoicedomain.RawItem) (invoicedomain.LineItem, bool, error) {
	var (
		entry catalog.Entry
		found bool
	)
	if s.catalog != nil && strings.TrimSpace(raw.ProductID) != "" {
		entry, found = s.catalog.Lookup(raw.ProductID)
	}

	name := strings.TrimSpace(raw.ProductName)
	if name == "" && found {
		name = entry.Name
	}
	if name == "" {
		return invoicedomain.LineItem{}, false, nil
	}
	if raw.Quantity < 0 {
		return invoicedomain.LineItem{}, false, invoicedomain.NewItemValidationError(index, "quantity", "negative", "quantity cannot be negative")
	}
	if raw.Quantity == 0 {
		return invoicedomain.LineItem{}, false, nil
	}

	var rate decimal.Decimal
	switch {
	case raw.UnitRate != nil:
		rate = *raw.UnitRate
	case found:
		rate = entry.UnitRate
	default:
		return invoicedomain.LineItem{}, false, invoicedomain.NewItemValidationError(index, "unit_rate", "required", "unit rate is required for products outside the catalog")
	}

	units := 0
	switch {
	case raw.UnitsPerCase != nil:
		units = *raw.UnitsPerCase
	case found:
		units = entry.UnitsPerCase
	}
	if units < 0 {
		return invoicedomain.LineItem{}, false, invoicedomain.NewItemValidationError(index, "units_per_case", "negative", "units per case cannot be negative")
	}

	line, err := s.policy.ComputeLine(raw.Quantity, rate, raw.DiscountPercent)
	switch {
	case errors.Is(err, pricing.ErrNegativeUnitRate):
		return invoicedomain.LineItem{}, false, invoicedomain.NewItemValidationError(index, "unit_rate", "negative", "unit rate cannot be negative")
	case errors.Is(err, pricing.ErrDiscountOutOfRange):
		return invoicedomain.LineItem{}, false, invoicedomain.NewItemValidationError(index, "discount_percent", "out_of_range", "discount must be between 0 and 100")
	case err != nil:
		return invoicedomain.LineItem{}, false, invoicedomain.NewItemValidationError(index, "quantity", "invalid", err.Error())
	}

	return invoicedomain.LineItem{
		ProductName:     name,
		Quantity:        raw.Quantity,
		UnitsPerCase:    units,
		UnitRate:        rate,
		DiscountPercent: raw.DiscountPercent,
		DiscountAmount:  line.DiscountAmount,
		NetRate:         line.NetRate,
		LineTotal:       line.LineTotal,
	}, true, nil
}

func (s *Service) save(ctx context.Context, draft invoicedomain.InvoiceRecord) (invoicedomain.InvoiceRecord, error) {
	ctx, span := s.tracer.Start(ctx, "invoice.store.save", trace.WithAttributes(attribute.String("backend", s.store.Backend())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	start := time.Now()
	saved, err := s.store.Save(ctx, draft)
	s.metrics.RecordStore(ctx, time.Since(start), s.store.Backend(), "save")
	if err != nil {
		span.SetStatus(codes.Error, "save")
		return invoicedomain.InvoiceRecord{}, s.storageError("save", err)
	}
	return saved, nil
}

func (s *Service) renderAndPublish(ctx context.Context, rec invoicedomain.InvoiceRecord) (*invoicedomain.Document, error) {
	ctx, span := s.tracer.Start(ctx, "invoice.document")
	defer span.End()

	start := time.Now()
	doc, err := s.renderer.Render(ctx, rec)
	elapsed := time.Since(start)
	if err != nil {
		renderErr := asRenderError(rec.InvoiceNumber, "render", err)
		s.ledger.RenderFailed(renderErr.Reason)
		s.metrics.RecordRender(ctx, elapsed, "error")
		return nil, renderErr
	}
	s.ledger.ObserveRender(elapsed)
	s.metrics.RecordRender(ctx, elapsed, outcomeOK)

	name := publish.FileName(rec)
	location, err := s.publisher.Publish(ctx, name, doc)
	if err != nil {
		s.ledger.RenderFailed("publish")
		return nil, &invoicedomain.RenderError{InvoiceNumber: rec.InvoiceNumber, Reason: "publish", Err: err}
	}

	logger.WithContext(ctx, s.log).Debug("invoice document published",
		zap.String("file", name),
		zap.String("location", location),
		zap.String("publisher", s.publisher.Backend()),
	)
	return &invoicedomain.Document{FileName: name, Location: location, Bytes: doc}, nil
}

func (s *Service) storageError(op string, err error) error {
	var serr *invoicedomain.StorageError
	if !errors.As(err, &serr) {
		serr = invoicedomain.NewStorageError(s.store.Backend(), op, err)
	}
	s.ledger.StorageFailed(serr.Backend, serr.Op)
	return serr
}

func (s *Service) formatNumber(rec invoicedomain.InvoiceRecord) string {
	if s.formatter == nil {
		return fmt.Sprintf("%d", rec.InvoiceNumber)
	}
	return s.formatter.Format(rec.Date, rec.InvoiceNumber)
}

func asRenderError(number int64, reason string, err error) *invoicedomain.RenderError {
	var rerr *invoicedomain.RenderError
	if errors.As(err, &rerr) {
		return rerr
	}
	return &invoicedomain.RenderError{InvoiceNumber: number, Reason: reason, Err: err}
}
