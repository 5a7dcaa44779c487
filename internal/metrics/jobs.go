package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonStorage          = "storage"
	JobReasonRender           = "render"
	JobReasonUnknown          = "unknown"
)

// Jobs captures background job health.
type Jobs struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
}

func NewJobs(registerer prometheus.Registerer) *Jobs {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Jobs{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicedesk_job_runs_total",
			Help: "Background job runs by name.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoicedesk_job_duration_seconds",
			Help:    "Background job latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicedesk_job_errors_total",
			Help: "Background job errors by low-cardinality reason.",
		}, []string{"job", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicedesk_job_items_processed_total",
			Help: "Items handled by background jobs.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.errors, m.processed)
	return m
}

func (m *Jobs) IncRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *Jobs) ObserveDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Jobs) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyJobError(err)).Inc()
}

func (m *Jobs) AddProcessed(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(n))
}

func ClassifyJobError(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case domain.IsStorageError(err):
		return JobReasonStorage
	case domain.IsRenderError(err):
		return JobReasonRender
	}
	return JobReasonUnknown
}
