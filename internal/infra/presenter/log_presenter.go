package presenter

import (
	"context"

	domainPresenter "offline_sync_agent/internal/domain/presenter"

	"github.com/sirupsen/logrus"
)

// LogPresenter writes notifications to the log. Used when no messaging transport is configured.
type LogPresenter struct {
	logger *logrus.Entry
}

var _ domainPresenter.Presenter = (*LogPresenter)(nil)

func NewLogPresenter(logger *logrus.Entry) *LogPresenter {
	return &LogPresenter{logger: logger.WithField("component", "log_presenter")}
}

func (p *LogPresenter) Show(ctx context.Context, title, body string, id int32) error {
	return p.ShowWithData(ctx, title, body, id, nil)
}

func (p *LogPresenter) ShowWithData(_ context.Context, title, body string, id int32, data map[string]string) error {
	entry := p.logger.WithFields(logrus.Fields{"display_id": id, "title": title})
	if len(data) > 0 {
		entry = entry.WithField("payload", data)
	}
	entry.Info(body)
	return nil
}
