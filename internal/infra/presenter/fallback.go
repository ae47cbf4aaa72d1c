package presenter

import (
	"context"
	"fmt"

	domainPresenter "offline_sync_agent/internal/domain/presenter"

	"github.com/sirupsen/logrus"
)

// UIDispatcher runs closures on the single goroutine that owns the presentation layer.
type UIDispatcher struct {
	tasks chan func()
	done  chan struct{}
}

func NewUIDispatcher(buffer int) *UIDispatcher {
	if buffer <= 0 {
		buffer = 16
	}
	return &UIDispatcher{tasks: make(chan func(), buffer), done: make(chan struct{})}
}

// Run executes dispatched closures until ctx is cancelled, then runs whatever is still
// queued. Call it from the UI goroutine.
func (d *UIDispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case fn := <-d.tasks:
			fn()
		}
	}
}

func (d *UIDispatcher) drain() {
	for {
		select {
		case fn := <-d.tasks:
			fn()
		default:
			return
		}
	}
}

// Done is closed once Run has returned.
func (d *UIDispatcher) Done() <-chan struct{} {
	return d.done
}

// Dispatch queues fn without blocking. It reports false when the queue is full or Run
// has already returned.
func (d *UIDispatcher) Dispatch(fn func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.tasks <- fn:
		return true
	default:
		return false
	}
}

// AlertFunc shows a blocking in-app alert. It must only run on the UI goroutine.
type AlertFunc func(title, body string)

// AlertFallback shows an in-app alert when the primary presenter fails.
type AlertFallback struct {
	primary domainPresenter.Presenter
	alert   AlertFunc
	ui      *UIDispatcher
	logger  *logrus.Entry
}

var _ domainPresenter.Presenter = (*AlertFallback)(nil)

func WithAlertFallback(primary domainPresenter.Presenter, alert AlertFunc, ui *UIDispatcher, logger *logrus.Entry) *AlertFallback {
	return &AlertFallback{primary: primary, alert: alert, ui: ui, logger: logger.WithField("component", "alert_fallback")}
}

func (p *AlertFallback) Show(ctx context.Context, title, body string, id int32) error {
	return p.fallback(p.primary.Show(ctx, title, body, id), title, body, id)
}

func (p *AlertFallback) ShowWithData(ctx context.Context, title, body string, id int32, data map[string]string) error {
	return p.fallback(p.primary.ShowWithData(ctx, title, body, id, data), title, body, id)
}

func (p *AlertFallback) fallback(err error, title, body string, id int32) error {
	if err == nil {
		return nil
	}
	p.logger.WithError(err).WithField("display_id", id).Warn("Presenter failed, falling back to in-app alert")
	if !p.ui.Dispatch(func() { p.alert(title, body) }) {
		return fmt.Errorf("alert not queued after presenter error: %w", err)
	}
	return nil
}
