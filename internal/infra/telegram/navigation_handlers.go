// internal/infra/telegram/navigation_handlers.go
package telegram

import (
	"fmt"

	"offline_sync_agent/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Router accepts notification payloads and hands the resulting target to a navigator.
type Router interface {
	SetPending(payload map[string]string) app.Target
	TryExecutePendingNavigation(navigate func(app.Target) error) bool
}

// OpenNotification resolves a tapped "Open" button through the router. navigate receives
// the resolved target; it reports whether navigation happened.
func OpenNotification(payloads *PayloadRegistry, router Router, key string, navigate func(app.Target) error) (bool, error) {
	payload, ok := payloads.Lookup(key)
	if !ok {
		return false, fmt.Errorf("no payload for notification %s", key)
	}
	router.SetPending(payload)
	return router.TryExecutePendingNavigation(navigate), nil
}

// RegisterNavigationHandlers handles taps on the "Open" button of sent notifications.
func RegisterNavigationHandlers(b *telebot.Bot, payloads *PayloadRegistry, router Router, baseLogger *logrus.Entry) {
	b.Handle(&telebot.Btn{Unique: openButtonUnique}, func(c telebot.Context) error {
		key := c.Callback().Data
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":    "open_notification",
			"display_id": key,
		})

		navigated, err := OpenNotification(payloads, router, key, func(t app.Target) error {
			logCtx.WithField("route", t.Route).Info("Navigating to notification target")
			return c.Send(fmt.Sprintf("Open %s", t.Route))
		})
		if err != nil {
			logCtx.WithError(err).Warn("Callback for unknown notification")
			return c.Respond(&telebot.CallbackResponse{Text: "This notification has expired."})
		}
		if !navigated {
			return c.Respond(&telebot.CallbackResponse{Text: "Could not open this notification."})
		}
		return c.Respond()
	})
}
