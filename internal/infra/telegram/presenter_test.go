package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"offline_sync_agent/internal/app"
	"offline_sync_agent/internal/infra/logger"

	"gopkg.in/telebot.v3"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   *telebot.SendOptions
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return nil
}

func TestPresenterSendsWithOpenButton(t *testing.T) {
	sender := &fakeSender{}
	payloads := NewPayloadRegistry(0)
	p := NewPresenter(sender, -100123, payloads, logger.Discard())

	data := map[string]string{"type": "match", "eventId": "7", "matchNumber": "4"}
	if err := p.ShowWithData(context.Background(), "Match <soon>", "Match 4 at 10:04", 42, data); err != nil {
		t.Fatalf("ShowWithData failed: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.chatID != -100123 || !strings.Contains(msg.text, "<b>Match &lt;soon&gt;</b>") {
		t.Errorf("Unexpected message %+v", msg)
	}
	markup := msg.opts.ReplyMarkup
	if markup == nil || len(markup.InlineKeyboard) != 1 || markup.InlineKeyboard[0][0].Text != "Open" {
		t.Fatalf("Expected an inline Open button, got %+v", markup)
	}
	if got, ok := payloads.Lookup("42"); !ok || got["matchNumber"] != "4" {
		t.Errorf("Expected payload registered under the display id, got %v", got)
	}
}

func TestPresenterPlainShow(t *testing.T) {
	sender := &fakeSender{}
	p := NewPresenter(sender, 1, NewPayloadRegistry(0), logger.Discard())
	if err := p.Show(context.Background(), "Hi", "there", 1); err != nil {
		t.Fatal(err)
	}
	if sender.sent[0].opts.ReplyMarkup != nil {
		t.Error("Expected no button without payload")
	}

	sender.err = errors.New("chat not found")
	if err := p.Show(context.Background(), "Hi", "there", 2); err == nil {
		t.Error("Expected send error to be returned")
	}
}

func TestPresenterHonoursContext(t *testing.T) {
	p := NewPresenter(&fakeSender{}, 1, nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Show(ctx, "t", "b", 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected a cancelled context to stop the send, got %v", err)
	}
}

func TestPayloadRegistryEvictsOldest(t *testing.T) {
	r := NewPayloadRegistry(2)
	r.Put("a", map[string]string{"type": "chat"})
	r.Put("b", nil)
	r.Put("c", nil)
	if _, ok := r.Lookup("a"); ok {
		t.Error("Expected oldest payload evicted")
	}
	if _, ok := r.Lookup("c"); !ok {
		t.Error("Expected newest payload kept")
	}
}

func TestOpenNotificationThroughRouter(t *testing.T) {
	payloads := NewPayloadRegistry(0)
	payloads.Put("9", map[string]string{"type": "chat", "sourceType": "user", "sourceId": "u1", "messageId": "m1"})
	router := app.NewNavigationRouter(nil, logger.Discard())

	var route string
	ok, err := OpenNotification(payloads, router, "9", func(tg app.Target) error {
		route = tg.Route
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("Expected navigation, got %v %v", ok, err)
	}
	if route != "/chat?sourceType=user&sourceId=u1&messageId=m1" {
		t.Errorf("Unexpected route %s", route)
	}
	if _, pending := router.Pending(); pending {
		t.Error("Expected pending target consumed")
	}

	if _, err := OpenNotification(payloads, router, "missing", func(app.Target) error { return nil }); err == nil {
		t.Error("Expected error for unknown payload")
	}
}
