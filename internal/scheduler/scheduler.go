// Package scheduler runs the engine's periodic sweeps: pending journal
// entries, compliance alert detection, and overdue invoice marking.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/lexfirma/trustledger/internal/billing/domain"
	"github.com/lexfirma/trustledger/internal/clock"
	compliancedomain "github.com/lexfirma/trustledger/internal/compliance/domain"
	journaldomain "github.com/lexfirma/trustledger/internal/journal/domain"
	obsmetrics "github.com/lexfirma/trustledger/internal/observability/metrics"
	trustdomain "github.com/lexfirma/trustledger/internal/trust/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   50,
		JobTimeout:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	JournalSvc    journaldomain.Service
	BillingSvc    billingdomain.Service
	ComplianceSvc compliancedomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
	Config        Config              `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	journalSvc    journaldomain.Service
	billingSvc    billingdomain.Service
	complianceSvc compliancedomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.JournalSvc == nil || p.BillingSvc == nil || p.ComplianceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		journalSvc:    p.JournalSvc,
		billingSvc:    p.BillingSvc,
		complianceSvc: p.ComplianceSvc,
		obsMetrics:    p.ObsMetrics,
	}, nil
}

// RunForever ticks until the context is cancelled. Each tick runs every job
// once; a failing job logs and waits for the next tick.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.RunInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one pass of all jobs.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runJob(ctx, "journal_sweep", s.sweepPendingJournals)
	s.runJob(ctx, "compliance_sweep", s.complianceSvc.Sweep)
	s.runJob(ctx, "overdue_invoices", s.markOverdueInvoices)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked",
				zap.String("job", name),
				zap.Any("panic", r),
			)
		}
	}()

	start := s.clock.Now()
	s.obsMetrics.IncJobRun(name)
	err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.log.Warn("job timed out",
				zap.String("job", name),
				zap.Duration("timeout", s.cfg.JobTimeout),
			)
			return
		}
		s.log.Error("job failed",
			zap.String("job", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	s.log.Debug("job finished",
		zap.String("job", name),
		zap.Duration("elapsed", elapsed),
	)
}

// sweepPendingJournals backfills journal entries for trust transactions that
// committed without one. The sweep is idempotent per the journal engine's
// source uniqueness.
func (s *Scheduler) sweepPendingJournals(ctx context.Context) error {
	orgIDs, err := s.orgsWithTrustAccounts(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, orgID := range orgIDs {
		posted, err := s.journalSvc.ProcessPendingEntries(ctx, orgID, s.cfg.BatchSize)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("org %s: %w", orgID, err)
			}
			continue
		}
		if posted > 0 {
			s.log.Info("backfilled journal entries",
				zap.String("org_id", orgID.String()),
				zap.Int("posted", posted),
			)
		}
	}
	return firstErr
}

func (s *Scheduler) markOverdueInvoices(ctx context.Context) error {
	orgIDs, err := s.orgsWithInvoices(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	var firstErr error
	for _, orgID := range orgIDs {
		updated, err := s.billingSvc.MarkOverdueInvoices(ctx, orgID, now)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("org %s: %w", orgID, err)
			}
			continue
		}
		if updated > 0 {
			s.log.Info("marked invoices overdue",
				zap.String("org_id", orgID.String()),
				zap.Int("count", updated),
			)
		}
	}
	return firstErr
}

func (s *Scheduler) orgsWithTrustAccounts(ctx context.Context) ([]snowflake.ID, error) {
	var orgIDs []snowflake.ID
	err := s.db.WithContext(ctx).Model(&trustdomain.TrustAccount{}).
		Distinct("org_id").
		Pluck("org_id", &orgIDs).Error
	return orgIDs, err
}

func (s *Scheduler) orgsWithInvoices(ctx context.Context) ([]snowflake.ID, error) {
	var orgIDs []snowflake.ID
	err := s.db.WithContext(ctx).Model(&billingdomain.Invoice{}).
		Distinct("org_id").
		Pluck("org_id", &orgIDs).Error
	return orgIDs, err
}
