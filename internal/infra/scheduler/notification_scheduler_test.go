package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"offline_sync_agent/internal/app"
	"offline_sync_agent/internal/infra/logger"
)

type fakeNotificationService struct {
	loads     atomic.Int32
	cycles    atomic.Int32
	delivered int
	release   chan struct{} // when set, RunCycle waits on it
	mu        sync.Mutex
}

func (f *fakeNotificationService) LoadState(context.Context) { f.loads.Add(1) }

func (f *fakeNotificationService) RunCycle(ctx context.Context) app.CycleResult {
	f.cycles.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return app.CycleResult{Past: f.delivered}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNotificationSchedulerRunsAndRearms(t *testing.T) {
	svc := &fakeNotificationService{delivered: 1}
	s := NewNotificationScheduler(svc, NewAdaptiveInterval(5*time.Millisecond, 10*time.Millisecond, 3), logger.Discard())

	s.Start(context.Background())
	s.Start(context.Background())
	eventually(t, func() bool { return svc.cycles.Load() >= 3 }, "Expected repeated cycles")
	s.Stop()

	if svc.loads.Load() != 1 {
		t.Errorf("Expected tracking state loaded once, got %d", svc.loads.Load())
	}
	after := svc.cycles.Load()
	time.Sleep(30 * time.Millisecond)
	if svc.cycles.Load() != after {
		t.Error("Expected no cycles after Stop")
	}
	if s.Running() {
		t.Error("Expected scheduler stopped")
	}
}

func TestNotificationSchedulerSkipsOverlappingCycles(t *testing.T) {
	svc := &fakeNotificationService{release: make(chan struct{})}
	s := NewNotificationScheduler(svc, NewAdaptiveInterval(time.Hour, time.Hour, 3), logger.Discard())

	s.Start(context.Background())
	eventually(t, func() bool { return svc.cycles.Load() == 1 }, "Expected first cycle to start")

	s.ForceCheck()
	s.ForceCheck()
	time.Sleep(20 * time.Millisecond)
	if n := svc.cycles.Load(); n != 1 {
		t.Errorf("Expected overlapping cycles skipped, got %d cycles", n)
	}

	close(svc.release)
	s.Stop()
}

func TestNotificationSchedulerStopWaitsForCycle(t *testing.T) {
	svc := &fakeNotificationService{release: make(chan struct{})}
	s := NewNotificationScheduler(svc, NewAdaptiveInterval(time.Hour, time.Hour, 3), logger.Discard())
	s.Start(context.Background())
	eventually(t, func() bool { return svc.cycles.Load() == 1 }, "Expected first cycle to start")

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(svc.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}
}

func TestNotificationSchedulerAdaptsInterval(t *testing.T) {
	svc := &fakeNotificationService{}
	s := NewNotificationScheduler(svc, NewAdaptiveInterval(time.Hour, 2*time.Hour, 1), logger.Discard())
	s.Start(context.Background())
	defer s.Stop()

	eventually(t, func() bool { return s.CurrentInterval() == 90*time.Minute }, "Expected interval to grow after an empty cycle")

	s.ForceCheck()
	eventually(t, func() bool { return svc.cycles.Load() == 2 }, "Expected forced cycle")
	eventually(t, func() bool { return s.CurrentInterval() == 90*time.Minute }, "Expected interval reset then grown once")
}
