package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/catalog"
	"github.com/smallbiznis/invoicedesk/internal/config"
	invoicedomain "github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/observability"
	"github.com/smallbiznis/invoicedesk/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoiceService struct {
	records   map[int64]invoicedomain.InvoiceRecord
	order     []int64
	submitErr error
	renderErr error
	storeErr  error

	lastSubmit invoicedomain.SubmitRequest
	submits    int
}

func newFakeInvoiceService() *fakeInvoiceService {
	return &fakeInvoiceService{records: map[int64]invoicedomain.InvoiceRecord{}}
}

func (f *fakeInvoiceService) add(rec invoicedomain.InvoiceRecord) {
	f.records[rec.InvoiceNumber] = rec
	f.order = append(f.order, rec.InvoiceNumber)
}

func (f *fakeInvoiceService) Submit(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.SubmitResult, error) {
	f.submits++
	f.lastSubmit = req
	if f.submitErr != nil {
		return invoicedomain.SubmitResult{}, f.submitErr
	}
	rec := invoicedomain.InvoiceRecord{
		InvoiceNumber: int64(len(f.order) + 1),
		CustomerName:  req.CustomerName,
		TotalAmount:   decimal.RequireFromString("1150.00"),
		Date:          time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
	f.add(rec)
	result := invoicedomain.SubmitResult{Invoice: rec, FormattedNumber: "1"}
	if f.renderErr != nil {
		return result, &invoicedomain.RenderError{InvoiceNumber: rec.InvoiceNumber, Reason: "generate", Err: f.renderErr}
	}
	result.Document = &invoicedomain.Document{FileName: "acme_1.pdf", Location: "/tmp/acme_1.pdf"}
	return result, nil
}

func (f *fakeInvoiceService) NextNumber(ctx context.Context) (int64, error) {
	if f.storeErr != nil {
		return 0, f.storeErr
	}
	return int64(len(f.order) + 1), nil
}

func (f *fakeInvoiceService) Get(ctx context.Context, invoiceNumber int64) (invoicedomain.InvoiceRecord, error) {
	if f.storeErr != nil {
		return invoicedomain.InvoiceRecord{}, f.storeErr
	}
	rec, ok := f.records[invoiceNumber]
	if !ok {
		return invoicedomain.InvoiceRecord{}, invoicedomain.ErrInvoiceNotFound
	}
	return rec, nil
}

func (f *fakeInvoiceService) List(ctx context.Context) ([]invoicedomain.InvoiceRecord, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	out := make([]invoicedomain.InvoiceRecord, 0, len(f.order))
	for _, n := range f.order {
		out = append(out, f.records[n])
	}
	return out, nil
}

func (f *fakeInvoiceService) Render(ctx context.Context, invoiceNumber int64) (invoicedomain.SubmitResult, error) {
	rec, err := f.Get(ctx, invoiceNumber)
	if err != nil {
		return invoicedomain.SubmitResult{}, err
	}
	if f.renderErr != nil {
		return invoicedomain.SubmitResult{Invoice: rec}, &invoicedomain.RenderError{InvoiceNumber: invoiceNumber, Reason: "generate", Err: f.renderErr}
	}
	return invoicedomain.SubmitResult{
		Invoice: rec,
		Document: &invoicedomain.Document{
			FileName: "acme_1.pdf",
			Location: "/tmp/acme_1.pdf",
			Bytes:    []byte("%PDF-1.3 test"),
		},
	}, nil
}

func (f *fakeInvoiceService) Preview(ctx context.Context, invoiceNumber int64) (string, error) {
	rec, err := f.Get(ctx, invoiceNumber)
	if err != nil {
		return "", err
	}
	return "<html><body>" + rec.CustomerName + "</body></html>", nil
}

func newTestRouter(t *testing.T, svc invoicedomain.Service) *gin.Engine {
	t.Helper()
	return newLimitedTestRouter(t, svc, nil)
}

func newLimitedTestRouter(t *testing.T, svc invoicedomain.Service, limiter *ratelimit.SubmitLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	settings := config.DefaultSettings()
	settings.Catalog.Products = []config.ProductSettings{
		{ID: "widget-a", Name: "Widget A", UnitRate: "25.25", UnitsPerCase: 12},
	}
	cat := catalog.New(catalog.Params{Settings: config.NewStaticSettingsHolder(settings), Log: zap.NewNop()})

	engine := NewEngine(observability.Config{}, nil, prometheus.NewRegistry())
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        config.Config{HTTPAddr: ":0"},
		InvoiceSvc: svc,
		Catalog:    cat,
		Log:        zap.NewNop(),

		SubmitLimiter: limiter,
	})
	return engine
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, newFakeInvoiceService())

	resp := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, newFakeInvoiceService())

	resp := doRequest(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCreateInvoice_Created(t *testing.T) {
	svc := newFakeInvoiceService()
	router := newTestRouter(t, svc)

	body := `{"customer_name":"Acme","customer_address":"1 Main St","items":[
		{"product_name":"A","quantity":10,"unit_rate":"100","discount_percent":"10"},
		{"product_id":"widget-a","quantity":5}
	]}`
	resp := doRequest(router, http.MethodPost, "/api/invoices", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var out struct {
		Data struct {
			Invoice struct {
				InvoiceNumber int64  `json:"invoice_number"`
				CustomerName  string `json:"customer_name"`
			} `json:"invoice"`
			Document struct {
				FileName string `json:"file_name"`
				Location string `json:"location"`
			} `json:"document"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, int64(1), out.Data.Invoice.InvoiceNumber)
	assert.Equal(t, "Acme", out.Data.Invoice.CustomerName)
	assert.Equal(t, "acme_1.pdf", out.Data.Document.FileName)

	require.Len(t, svc.lastSubmit.Items, 2)
	require.NotNil(t, svc.lastSubmit.Items[0].UnitRate)
	assert.True(t, decimal.NewFromInt(100).Equal(*svc.lastSubmit.Items[0].UnitRate))
	assert.True(t, decimal.NewFromInt(10).Equal(svc.lastSubmit.Items[0].DiscountPercent))
	assert.Nil(t, svc.lastSubmit.Items[1].UnitRate)
	assert.Equal(t, "widget-a", svc.lastSubmit.Items[1].ProductID)
}

func TestCreateInvoice_MalformedBody(t *testing.T) {
	svc := newFakeInvoiceService()
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodPost, "/api/invoices", `{"customer_name":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", decodeError(t, resp).Type)
	assert.Zero(t, svc.submits)
}

func TestCreateInvoice_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		submitErr  error
		renderErr  error
		wantStatus int
		wantType   string
	}{
		{
			name:       "validation",
			submitErr:  invoicedomain.NewValidationError("customer_name", "required", "customer name is required"),
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:       "storage",
			submitErr:  invoicedomain.NewStorageError("csv", "save", errors.New("disk full")),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "storage_unavailable",
		},
		{
			name:       "render",
			renderErr:  errors.New("engine failed"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "render_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeInvoiceService()
			svc.submitErr = tt.submitErr
			svc.renderErr = tt.renderErr
			router := newTestRouter(t, svc)

			resp := doRequest(router, http.MethodPost, "/api/invoices", `{"customer_name":"Acme","items":[]}`)
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantType, decodeError(t, resp).Type)
		})
	}
}

func TestCreateInvoice_ValidationListsField(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.submitErr = invoicedomain.NewItemValidationError(2, "unit_rate", "required", "unit rate is required")
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodPost, "/api/invoices", `{"customer_name":"Acme"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "unit_rate", payload.Errors[0].Field)
	assert.Equal(t, 2, payload.Errors[0].Index)
}

func TestCreateInvoice_RenderErrorCarriesNumber(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.renderErr = errors.New("engine failed")
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodPost, "/api/invoices", `{"customer_name":"Acme"}`)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, int64(1), decodeError(t, resp).InvoiceNumber)

	// the record stays retrievable for a later re-render
	resp = doRequest(router, http.MethodGet, "/api/invoices/1", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestNextInvoiceNumber(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.add(invoicedomain.InvoiceRecord{InvoiceNumber: 1, CustomerName: "Acme"})
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodGet, "/api/invoices/next-number", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var out struct {
		Data struct {
			NextNumber int64 `json:"next_number"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, int64(2), out.Data.NextNumber)
}

func TestListInvoices_EmptyIsArray(t *testing.T) {
	router := newTestRouter(t, newFakeInvoiceService())

	resp := doRequest(router, http.MethodGet, "/api/invoices", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":[]}`, resp.Body.String())
}

func TestListInvoices_StorageUnavailable(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.storeErr = invoicedomain.NewStorageError("redis", "list", errors.New("connection refused"))
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodGet, "/api/invoices", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestGetInvoice(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.add(invoicedomain.InvoiceRecord{InvoiceNumber: 1, CustomerName: "Acme"})
	router := newTestRouter(t, svc)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/invoices/1", http.StatusOK},
		{"/api/invoices/99", http.StatusNotFound},
		{"/api/invoices/abc", http.StatusBadRequest},
		{"/api/invoices/0", http.StatusBadRequest},
		{"/api/invoices/-3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := doRequest(router, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}
}

func TestDownloadInvoicePDF(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.add(invoicedomain.InvoiceRecord{InvoiceNumber: 1, CustomerName: "Acme"})
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodGet, "/api/invoices/1/pdf", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="acme_1.pdf"`, resp.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")))
}

func TestDownloadInvoicePDF_RenderFailure(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.add(invoicedomain.InvoiceRecord{InvoiceNumber: 4, CustomerName: "Acme"})
	svc.renderErr = errors.New("engine failed")
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodGet, "/api/invoices/4/pdf", "")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "render_error", payload.Type)
	assert.Equal(t, int64(4), payload.InvoiceNumber)
}

func TestPreviewInvoice(t *testing.T) {
	svc := newFakeInvoiceService()
	svc.add(invoicedomain.InvoiceRecord{InvoiceNumber: 1, CustomerName: "Acme"})
	router := newTestRouter(t, svc)

	resp := doRequest(router, http.MethodGet, "/api/invoices/1/preview", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, resp.Body.String(), "Acme")
}

func TestCatalogRoutes(t *testing.T) {
	router := newTestRouter(t, newFakeInvoiceService())

	resp := doRequest(router, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "widget-a")

	resp = doRequest(router, http.MethodGet, "/api/catalog/widget-a", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Widget A")

	resp = doRequest(router, http.MethodGet, "/api/catalog/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t, newFakeInvoiceService())

	resp := doRequest(router, http.MethodGet, "/api/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(invoicedomain.NewStorageError("sql", "save", errors.New("x")))
	assert.Equal(t, "storage_unavailable", typ)
	assert.Equal(t, "save", code)

	typ, code = classifyErrorForLog(&invoicedomain.RenderError{InvoiceNumber: 3, Reason: "engine_panic"})
	assert.Equal(t, "render_error", typ)
	assert.Equal(t, "engine_panic", code)
}

func TestCreateInvoice_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewSubmitLimiter(client, "test", 0.001, 1)
	require.NoError(t, err)

	svc := newFakeInvoiceService()
	router := newLimitedTestRouter(t, svc, limiter)

	resp := doRequest(router, http.MethodPost, "/api/invoices", `{"customer_name":"Acme"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = doRequest(router, http.MethodPost, "/api/invoices", `{"customer_name":"Acme"}`)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, resp).Type)
	assert.Equal(t, 1, svc.submits)

	// reads are not throttled
	resp = doRequest(router, http.MethodGet, "/api/invoices", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCreateInvoice_RateLimitBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewSubmitLimiter(client, "test", 1, 1)
	require.NoError(t, err)
	mr.Close()

	svc := newFakeInvoiceService()
	router := newLimitedTestRouter(t, svc, limiter)

	resp := doRequest(router, http.MethodPost, "/api/invoices", `{"customer_name":"Acme"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Zero(t, svc.submits)
}
