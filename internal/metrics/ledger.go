package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Ledger tracks invoice issuance on a Prometheus registry.
type Ledger struct {
	issued            *prometheus.CounterVec
	amount            prometheus.Histogram
	lastNumber        prometheus.Gauge
	renderFailures    *prometheus.CounterVec
	storageFailures   *prometheus.CounterVec
	validationFailure *prometheus.CounterVec
	renderDuration    prometheus.Histogram
}

func NewLedger(registerer prometheus.Registerer) *Ledger {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Ledger{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicedesk_invoices_issued_total",
			Help: "Invoices committed to the store.",
		}, []string{"backend"}),
		amount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "invoicedesk_invoice_amount",
			Help:    "Total amount of committed invoices.",
			Buckets: prometheus.ExponentialBuckets(100, 4, 10),
		}),
		lastNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "invoicedesk_last_invoice_number",
			Help: "Most recently issued invoice number.",
		}),
		renderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicedesk_render_failures_total",
			Help: "Document renders that failed after the record was committed.",
		}, []string{"reason"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicedesk_storage_failures_total",
			Help: "Store operations that returned an error.",
		}, []string{"backend", "op"}),
		validationFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicedesk_validation_failures_total",
			Help: "Submissions rejected before persistence.",
		}, []string{"code"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "invoicedesk_render_duration_seconds",
			Help:    "Time spent composing invoice documents.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	registerer.MustRegister(
		m.issued,
		m.amount,
		m.lastNumber,
		m.renderFailures,
		m.storageFailures,
		m.validationFailure,
		m.renderDuration,
	)
	return m
}

func (m *Ledger) InvoiceIssued(backend string, number int64, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(label(backend)).Inc()
	m.lastNumber.Set(float64(number))
	amount, _ := total.Float64()
	m.amount.Observe(amount)
}

func (m *Ledger) RenderFailed(reason string) {
	if m == nil {
		return
	}
	m.renderFailures.WithLabelValues(label(reason)).Inc()
}

func (m *Ledger) StorageFailed(backend, op string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(label(backend), label(op)).Inc()
}

func (m *Ledger) ValidationFailed(code string) {
	if m == nil {
		return
	}
	m.validationFailure.WithLabelValues(label(code)).Inc()
}

func (m *Ledger) ObserveRender(d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(d.Seconds())
}

func label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
