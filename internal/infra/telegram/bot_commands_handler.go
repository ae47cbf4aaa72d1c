// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"strings"

	"offline_sync_agent/internal/app"
	"offline_sync_agent/internal/domain/scouting"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// ForceChecker runs a notification cycle on demand.
type ForceChecker interface {
	ForceCheck()
}

// QueueLister exposes the pending write queue.
type QueueLister interface {
	List(ctx context.Context) []scouting.Submission
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	chatID int64, // only this chat may use the commands
	checker ForceChecker,
	queue QueueLister,
	baseLogger *logrus.Entry,
) {
	cmdLogger := baseLogger.WithField("handler_group", "commands")

	authorized := func(c telebot.Context, command string) (*logrus.Entry, bool) {
		logCtx := cmdLogger.WithFields(logrus.Fields{"command": command, "chat_id": c.Chat().ID})
		if c.Chat().ID != chatID {
			logCtx.Warn("Command from unknown chat ignored")
			return logCtx, false
		}
		logCtx.Info("Processing command")
		return logCtx, true
	}

	b.Handle("/start", func(c telebot.Context) error {
		if _, ok := authorized(c, "/start"); !ok {
			return nil
		}
		return c.Send("Notifications for this chat are active. Use /help for the list of commands.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		if _, ok := authorized(c, "/help"); !ok {
			return nil
		}
		var helpText strings.Builder
		helpText.WriteString("Available commands:\n\n")
		helpText.WriteString("/check - poll the backend for notifications now\n")
		helpText.WriteString("/queue - show submissions waiting to be synced\n")
		helpText.WriteString("/help - show this message")
		return c.Send(helpText.String())
	})

	b.Handle("/check", func(c telebot.Context) error {
		logCtx, ok := authorized(c, "/check")
		if !ok {
			return nil
		}
		checker.ForceCheck()
		logCtx.Debug("Forced notification check")
		return c.Send("Checking for notifications...")
	})

	b.Handle("/queue", func(c telebot.Context) error {
		if _, ok := authorized(c, "/queue"); !ok {
			return nil
		}
		return c.Send(app.FormatQueue(queue.List(ctx)))
	})
}
