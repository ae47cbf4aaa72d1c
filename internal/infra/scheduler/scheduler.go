package scheduler

import (
	"context"
	"fmt"
	"time"

	"offline_sync_agent/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Preloader refreshes cached datasets.
type Preloader interface {
	PreloadAll(ctx context.Context, force bool) app.PreloadReport
}

// QueueDrainer submits queued offline entries.
type QueueDrainer interface {
	Drain(ctx context.Context, submit app.SubmitFunc) app.DrainReport
}

const (
	preloadJobTimeout = 5 * time.Minute
	queueJobTimeout   = 2 * time.Minute
)

// RefreshScheduler runs the periodic dataset preload and pending queue sync on cron specs.
type RefreshScheduler struct {
	cronEngine  *cron.Cron
	preloader   Preloader
	queue       QueueDrainer
	submit      app.SubmitFunc
	logger      *logrus.Entry
	specPreload string
	specQueue   string
}

func NewRefreshScheduler(
	preloader Preloader,
	queue QueueDrainer,
	submit app.SubmitFunc,
	logger *logrus.Entry,
	specPreload string, // e.g. "*/30 * * * *"
	specQueue string, // e.g. "*/5 * * * *"
) *RefreshScheduler {
	logger = logger.WithField("component", "refresh_scheduler")
	cronLogger := cron.PrintfLogger(logger)
	return &RefreshScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		preloader:   preloader,
		queue:       queue,
		submit:      submit,
		logger:      logger,
		specPreload: specPreload,
		specQueue:   specQueue,
	}
}

// Start registers both jobs and starts the cron engine.
func (s *RefreshScheduler) Start() error {
	s.logger.Info("Starting refresh scheduler...")

	if _, err := s.cronEngine.AddFunc(s.specPreload, s.RunPreload); err != nil {
		return fmt.Errorf("could not add preload cron job: %w", err)
	}
	if _, err := s.cronEngine.AddFunc(s.specQueue, s.RunQueueSync); err != nil {
		return fmt.Errorf("could not add queue sync cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"preload":    s.specPreload,
		"queue_sync": s.specQueue,
	}).Info("Refresh scheduler started with jobs.")
	return nil
}

// RunPreload refreshes expired datasets.
func (s *RefreshScheduler) RunPreload() {
	ctx, cancel := context.WithTimeout(context.Background(), preloadJobTimeout)
	defer cancel()
	report := s.preloader.PreloadAll(ctx, false)
	if report.Skipped {
		s.logger.WithField("reason", report.Reason).Debug("Scheduled preload skipped")
		return
	}
	if len(report.Failed) > 0 {
		s.logger.WithField("failed", report.Failed).Warn("Scheduled preload finished with failures")
	}
}

// RunQueueSync submits queued entries.
func (s *RefreshScheduler) RunQueueSync() {
	ctx, cancel := context.WithTimeout(context.Background(), queueJobTimeout)
	defer cancel()
	report := s.queue.Drain(ctx, s.submit)
	if report.Submitted > 0 || report.Failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"submitted": report.Submitted,
			"failed":    report.Failed,
			"remaining": report.Remaining,
		}).Info("Pending queue sync finished")
	}
}

func (s *RefreshScheduler) Stop() {
	s.logger.Info("Stopping refresh scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.logger.Info("Refresh scheduler gracefully stopped.")
}
