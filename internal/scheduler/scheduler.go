package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"stocktrack/internal/archive"
	"stocktrack/internal/domain"
	"stocktrack/internal/notify"
	"stocktrack/internal/statement"
)

// Reporter is the part of the stock service the scheduled jobs need.
type Reporter interface {
	SalesStatement(ctx context.Context, start time.Time, end time.Time) (domain.Statement, error)
	ReceiptStatement(ctx context.Context, start time.Time, end time.Time) (domain.Statement, error)
	Alerts(ctx context.Context, threshold int64) (domain.StockAlerts, error)
}

type Options struct {
	StatementCron string
	AlertCron     string
	// Threshold is passed to Alerts as given; zero flags only items at or
	// below zero.
	Threshold int64
	// Location sets when the cron expressions fire. Archived statements
	// always cover a UTC calendar day.
	Location *time.Location
	Now      func() time.Time
}

// Scheduler runs the daily statement archive and the periodic stock alert.
type Scheduler struct {
	cron     *cron.Cron
	reporter Reporter
	archive  archive.Archive
	notifier notify.Notifier
	opts     Options
	logger   *zap.Logger
}

func New(reporter Reporter, arch archive.Archive, notifier notify.Notifier, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if arch == nil {
		arch = archive.NoopArchive{}
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(opts.Location)),
		reporter: reporter,
		archive:  arch,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Start registers the configured jobs and starts the cron loop. A job with
// an empty expression is not scheduled.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("statement_cron", s.opts.StatementCron),
		zap.String("alert_cron", s.opts.AlertCron),
	)

	if s.opts.StatementCron != "" {
		if _, err := s.cron.AddFunc(s.opts.StatementCron, s.archiveDaily); err != nil {
			return err
		}
	}
	if s.opts.AlertCron != "" {
		if _, err := s.cron.AddFunc(s.opts.AlertCron, s.checkAlerts); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// ArchiveStatements stores the sales and receipt statements for the
// calendar day of `day`.
func (s *Scheduler) ArchiveStatements(ctx context.Context, day time.Time) error {
	sales, err := s.reporter.SalesStatement(ctx, day, day)
	if err != nil {
		return err
	}
	if err := s.archive.SaveStatement(ctx, sales); err != nil {
		return err
	}

	receipts, err := s.reporter.ReceiptStatement(ctx, day, day)
	if err != nil {
		return err
	}
	if err := s.archive.SaveStatement(ctx, receipts); err != nil {
		return err
	}

	s.logger.Info("statements archived",
		zap.String("day", sales.From),
		zap.String("sales_amount", sales.Summary.TotalAmount.String()),
		zap.String("receipts_amount", receipts.Summary.TotalAmount.String()),
	)
	return nil
}

// CheckAlerts notifies when any item is low or out of stock. It reports
// whether a notification was sent.
func (s *Scheduler) CheckAlerts(ctx context.Context) (bool, error) {
	alerts, err := s.reporter.Alerts(ctx, s.opts.Threshold)
	if err != nil {
		return false, err
	}
	if !alerts.NeedsAttention() {
		return false, nil
	}
	if err := s.notifier.NotifyStockAlerts(ctx, alerts); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scheduler) archiveDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	day := statement.Day(s.opts.Now()).AddDate(0, 0, -1)
	if err := s.ArchiveStatements(ctx, day); err != nil {
		s.logger.Error("failed to archive statements", zap.Time("day", day), zap.Error(err))
	}
}

func (s *Scheduler) checkAlerts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.CheckAlerts(ctx); err != nil {
		s.logger.Error("failed to send stock alerts", zap.Error(err))
	}
}
