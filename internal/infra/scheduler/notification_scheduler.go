package scheduler

import (
	"context"
	"sync"
	"time"

	"offline_sync_agent/internal/app"

	"github.com/sirupsen/logrus"
)

// NotificationScheduler runs notification cycles on an adaptive timer.
// Cycles run on their own goroutine; a cycle that fires while another is still running
// is skipped.
type NotificationScheduler struct {
	service app.NotificationService
	logger  *logrus.Entry

	cycle sync.Mutex // held for the duration of a cycle

	mu       sync.Mutex
	interval *AdaptiveInterval
	timer    *time.Timer
	running  bool
	ctx      context.Context
	inflight sync.WaitGroup
}

func NewNotificationScheduler(service app.NotificationService, interval *AdaptiveInterval, logger *logrus.Entry) *NotificationScheduler {
	if interval == nil {
		interval = NewAdaptiveInterval(DefaultMinInterval, DefaultMaxInterval, DefaultEmptyCycleThreshold)
	}
	return &NotificationScheduler{
		service:  service,
		interval: interval,
		logger:   logger.WithField("component", "notification_scheduler"),
	}
}

// Start loads the tracking state and runs a first cycle right away. Cycles use ctx.
func (s *NotificationScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("Notification scheduler already running")
		return
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.WithField("interval", s.CurrentInterval().String()).Info("Starting notification scheduler...")
	s.service.LoadState(ctx)
	s.launch()
}

// Stop disarms the timer and waits for an in-flight cycle to finish.
func (s *NotificationScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.logger.Info("Stopping notification scheduler...")
	s.inflight.Wait()
	s.logger.Info("Notification scheduler stopped.")
}

// ForceCheck resets the interval to its minimum and runs a cycle now.
func (s *NotificationScheduler) ForceCheck() {
	s.mu.Lock()
	s.interval.Reset()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.logger.Debug("Forced notification check")
	s.launch()
}

func (s *NotificationScheduler) CurrentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval.Current()
}

func (s *NotificationScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// launch spawns a cycle unless the scheduler is stopped.
func (s *NotificationScheduler) launch() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		s.runCycle(ctx)
	}()
}

func (s *NotificationScheduler) runCycle(ctx context.Context) {
	if !s.cycle.TryLock() {
		s.logger.Debug("Previous notification cycle still running, skipping")
		return
	}
	defer s.cycle.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Notification cycle panicked")
			s.arm()
		}
	}()

	start := time.Now()
	result := s.service.RunCycle(ctx)

	s.mu.Lock()
	next := s.interval.Observe(result.Delivered())
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"delivered": result.Delivered(),
		"failures":  result.Failures,
		"duration":  time.Since(start).String(),
		"next":      next.String(),
	}).Debug("Notification cycle complete")
	s.arm()
}

// arm schedules the next cycle on the current interval.
func (s *NotificationScheduler) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.interval.Current(), s.launch)
}
