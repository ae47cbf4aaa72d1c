package scheduler

import (
	"context"
	"errors"
	"testing"

	"offline_sync_agent/internal/app"
	"offline_sync_agent/internal/domain/scouting"
	"offline_sync_agent/internal/infra/logger"
)

type fakePreloader struct {
	calls  int
	forced bool
}

func (f *fakePreloader) PreloadAll(_ context.Context, force bool) app.PreloadReport {
	f.calls++
	f.forced = force
	return app.PreloadReport{Fetched: []app.Dataset{app.DatasetConfig}}
}

type fakeDrainer struct {
	entries []scouting.Submission
}

func (f *fakeDrainer) Drain(ctx context.Context, submit app.SubmitFunc) app.DrainReport {
	var r app.DrainReport
	for _, e := range f.entries {
		if _, err := submit(ctx, e); err != nil {
			r.Failed++
			continue
		}
		r.Submitted++
	}
	return r
}

func TestRefreshSchedulerJobs(t *testing.T) {
	pre := &fakePreloader{}
	drainer := &fakeDrainer{entries: []scouting.Submission{{OfflineID: "a"}, {OfflineID: "b"}}}
	var submitted []string
	submit := func(_ context.Context, s scouting.Submission) (int64, error) {
		submitted = append(submitted, s.OfflineID)
		if s.OfflineID == "b" {
			return 0, errors.New("rejected")
		}
		return 1, nil
	}
	s := NewRefreshScheduler(pre, drainer, submit, logger.Discard(), "*/30 * * * *", "*/5 * * * *")

	s.RunPreload()
	if pre.calls != 1 || pre.forced {
		t.Errorf("Expected one unforced preload, got %d (forced=%v)", pre.calls, pre.forced)
	}
	s.RunQueueSync()
	if len(submitted) != 2 {
		t.Errorf("Expected both entries submitted, got %v", submitted)
	}
}

func TestRefreshSchedulerRejectsBadSpec(t *testing.T) {
	s := NewRefreshScheduler(&fakePreloader{}, &fakeDrainer{}, nil, logger.Discard(), "not a spec", "*/5 * * * *")
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Expected invalid cron spec to be rejected")
	}
}

func TestRefreshSchedulerStartStop(t *testing.T) {
	s := NewRefreshScheduler(&fakePreloader{}, &fakeDrainer{}, nil, logger.Discard(), "@every 1h", "@every 1h")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
}
