package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-co-op/gocron/v2"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	invoicedomain "github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/invoice/publish"
	"github.com/smallbiznis/invoicedesk/internal/lock"
	"github.com/smallbiznis/invoicedesk/internal/metrics"
	obscontext "github.com/smallbiznis/invoicedesk/internal/observability/context"
	obslogger "github.com/smallbiznis/invoicedesk/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobBackfill = "document_backfill"

	backfillLockKey = "scheduler:" + JobBackfill
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	InvoiceSvc invoicedomain.Service
	Publisher  publish.Publisher
	Log        *zap.Logger
	Clock      clock.Clock
	Config     Config         `optional:"true"`
	GenID      *snowflake.Node `optional:"true"`
	Locker     lock.Locker     `optional:"true"`
	Jobs       *metrics.Jobs   `optional:"true"`
}

// Scheduler re-renders committed invoices whose document never reached
// the publisher, e.g. after a render failure at submission time.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	publisher  publish.Publisher
	locker     lock.Locker
	jobs       *metrics.Jobs

	cron gocron.Scheduler
}

// BackfillResult summarises one backfill run.
type BackfillResult struct {
	Scanned  int
	Rendered int
	Failed   int
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.InvoiceSvc == nil || p.Publisher == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		publisher:  p.Publisher,
		locker:     p.Locker,
		jobs:       p.Jobs,
	}, nil
}

// Start schedules the backfill job every interval. The job never overlaps
// with itself.
func (s *Scheduler) Start(interval time.Duration) error {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.RunOnce(context.Background()); err != nil {
				s.log.Error("scheduler.job.failed", zap.String("job", JobBackfill), zap.Error(err))
			}
		}),
		gocron.WithName(JobBackfill),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return fmt.Errorf("register %s: %w", JobBackfill, err)
	}

	s.cron = cron
	cron.Start()
	s.log.Info("scheduler started", zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cron == nil {
		return nil
	}
	return s.cron.Shutdown()
}

// RunOnce performs a single backfill pass.
func (s *Scheduler) RunOnce(parent context.Context) (BackfillResult, error) {
	var result BackfillResult
	err := s.runJob(parent, JobBackfill, s.cfg.JobTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.backfill(ctx)
		return err
	})
	return result, err
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, runID := obscontext.EnsureCorrelationID(ctx)
	if s.genID != nil {
		runID = s.genID.Generate().String()
	}
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, backfillLockKey)
		if errors.Is(err, lock.ErrNotAcquired) {
			log.Debug("scheduler.job.skipped", zap.String("reason", "locked"))
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: acquire lock: %w", name, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("scheduler.job.unlock_failed", zap.Error(err))
			}
		}()
	}

	s.jobs.IncRun(name)
	log.Info("scheduler.job.start")

	err := fn(ctx)
	s.jobs.ObserveDuration(name, s.clock.Now().Sub(start))
	if err == nil {
		log.Info("scheduler.job.finish", zap.Duration("took", s.clock.Now().Sub(start)))
		return nil
	}

	s.jobs.IncError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) backfill(ctx context.Context) (BackfillResult, error) {
	var result BackfillResult

	records, err := s.invoiceSvc.List(ctx)
	if err != nil {
		return result, err
	}

	for _, rec := range records {
		if result.Rendered+result.Failed >= s.cfg.BatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		exists, err := s.publisher.Exists(ctx, publish.FileName(rec))
		if err != nil {
			result.Failed++
			s.jobs.IncError(JobBackfill, err)
			s.log.Warn("document lookup failed", zap.Int64("invoice_number", rec.InvoiceNumber), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		if _, err := s.invoiceSvc.Render(ctx, rec.InvoiceNumber); err != nil {
			result.Failed++
			s.jobs.IncError(JobBackfill, err)
			s.log.Warn("backfill render failed", zap.Int64("invoice_number", rec.InvoiceNumber), zap.Error(err))
			continue
		}
		result.Rendered++
	}

	s.jobs.AddProcessed(JobBackfill, result.Rendered)
	return result, nil
}
