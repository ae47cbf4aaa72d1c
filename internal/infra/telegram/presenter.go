// internal/infra/telegram/presenter.go
package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"sync"

	domainPresenter "offline_sync_agent/internal/domain/presenter"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

const (
	openButtonUnique = "open"
	maxPayloads      = 256
)

// PayloadRegistry keeps notification payloads by display id, since callback data is too
// small to carry them. The oldest entries are evicted first.
type PayloadRegistry struct {
	mu    sync.Mutex
	items map[string]map[string]string
	order []string
	limit int
}

func NewPayloadRegistry(limit int) *PayloadRegistry {
	if limit <= 0 {
		limit = maxPayloads
	}
	return &PayloadRegistry{items: make(map[string]map[string]string), limit: limit}
}

func (r *PayloadRegistry) Put(key string, payload map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		r.order = append(r.order, key)
	}
	r.items[key] = payload
	for len(r.order) > r.limit {
		delete(r.items, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *PayloadRegistry) Lookup(key string) (map[string]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[key]
	return p, ok
}

// Presenter delivers notifications to one Telegram chat, throttled to stay under the
// Bot API flood limits.
type Presenter struct {
	sender   Sender
	chatID   int64
	limiter  *rate.Limiter
	payloads *PayloadRegistry
	logger   *logrus.Entry
}

var _ domainPresenter.Presenter = (*Presenter)(nil)

func NewPresenter(sender Sender, chatID int64, payloads *PayloadRegistry, logger *logrus.Entry) *Presenter {
	return &Presenter{
		sender:   sender,
		chatID:   chatID,
		limiter:  rate.NewLimiter(rate.Limit(1), 3),
		payloads: payloads,
		logger:   logger.WithField("component", "telegram_presenter"),
	}
}

func (p *Presenter) Show(ctx context.Context, title, body string, id int32) error {
	return p.ShowWithData(ctx, title, body, id, nil)
}

// ShowWithData sends the notification with an "Open" button carrying its display id.
func (p *Presenter) ShowWithData(ctx context.Context, title, body string, id int32, data map[string]string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	opts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}
	if len(data) > 0 && p.payloads != nil {
		key := strconv.FormatInt(int64(id), 10)
		p.payloads.Put(key, data)
		markup := &telebot.ReplyMarkup{}
		markup.Inline(markup.Row(markup.Data("Open", openButtonUnique, key)))
		opts.ReplyMarkup = markup
	}

	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(title), html.EscapeString(body))
	if err := p.sender.SendMessage(p.chatID, text, opts); err != nil {
		return fmt.Errorf("send telegram notification %d: %w", id, err)
	}
	p.logger.WithFields(logrus.Fields{"display_id": id, "chat_id": p.chatID}).Debug("Notification sent")
	return nil
}
