package presenter

import (
	"context"
	"errors"
	"testing"
	"time"

	"offline_sync_agent/internal/infra/logger"
)

type failingPresenter struct{ err error }

func (f failingPresenter) Show(context.Context, string, string, int32) error { return f.err }
func (f failingPresenter) ShowWithData(context.Context, string, string, int32, map[string]string) error {
	return f.err
}

func TestAlertFallbackRunsOnUIGoroutine(t *testing.T) {
	ui := NewUIDispatcher(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uiGoroutine := make(chan struct{})
	alerts := make(chan string, 1)
	go func() {
		close(uiGoroutine)
		ui.Run(ctx)
	}()
	<-uiGoroutine

	p := WithAlertFallback(failingPresenter{err: errors.New("channel closed")}, func(title, body string) {
		alerts <- title + ": " + body
	}, ui, logger.Discard())

	if err := p.Show(ctx, "Match 12", "Queue now", 7); err != nil {
		t.Fatalf("Expected fallback to absorb the error, got %v", err)
	}

	select {
	case got := <-alerts:
		if got != "Match 12: Queue now" {
			t.Errorf("Unexpected alert %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Alert was never shown")
	}
}

func TestAlertFallbackReportsFullQueue(t *testing.T) {
	ui := NewUIDispatcher(1)
	ui.Dispatch(func() {}) // nobody is running the queue
	p := WithAlertFallback(failingPresenter{err: errors.New("boom")}, func(string, string) {}, ui, logger.Discard())

	if err := p.ShowWithData(context.Background(), "t", "b", 1, nil); err == nil {
		t.Error("Expected an error when the alert cannot be queued")
	}
}

func TestAlertFallbackPassesThroughSuccess(t *testing.T) {
	ui := NewUIDispatcher(1)
	called := false
	p := WithAlertFallback(NewLogPresenter(logger.Discard()), func(string, string) { called = true }, ui, logger.Discard())
	if err := p.Show(context.Background(), "t", "b", 1); err != nil {
		t.Fatal(err)
	}
	if called || !ui.Dispatch(func() {}) {
		t.Error("Expected no alert to be queued on success")
	}
}

func TestAlertFallbackFailsAfterDispatcherStopped(t *testing.T) {
	ui := NewUIDispatcher(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ui.Run(ctx)

	called := false
	p := WithAlertFallback(failingPresenter{err: errors.New("boom")}, func(string, string) { called = true }, ui, logger.Discard())
	if err := p.Show(context.Background(), "t", "b", 1); err == nil {
		t.Error("Expected an error once the dispatcher has stopped, so the notification is not recorded as shown")
	}
	if called {
		t.Error("Alert must not run after the dispatcher stopped")
	}
}

func TestUIDispatcherRunsQueuedTasksOnShutdown(t *testing.T) {
	ui := NewUIDispatcher(4)
	ran := 0
	ui.Dispatch(func() { ran++ })
	ui.Dispatch(func() { ran++ })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ui.Run(ctx)

	if ran != 2 {
		t.Errorf("Expected queued tasks to run before Run returns, got %d", ran)
	}
}
