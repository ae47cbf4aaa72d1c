// internal/app/navigation_router.go
package app

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"offline_sync_agent/internal/domain/cache"
	"offline_sync_agent/internal/domain/notification"
	"offline_sync_agent/internal/domain/scouting"

	"github.com/sirupsen/logrus"
)

// RouteHome is the landing route for payloads that name no specific screen.
const RouteHome = "/home"

// Target is a resolved navigation destination.
type Target struct {
	Route string
	Data  map[string]string
}

// EventLookup resolves an event code to its numeric id.
type EventLookup func(eventCode string) (int64, bool)

// CachedEventLookup resolves event codes against the cached events list.
func CachedEventLookup(ctx context.Context, store cache.Store) EventLookup {
	return func(eventCode string) (int64, bool) {
		var events []scouting.Event
		if !store.Read(ctx, cache.KeyEvents, &events) {
			return 0, false
		}
		e, ok := scouting.FindEvent(events, eventCode)
		if !ok || e.ID <= 0 {
			return 0, false
		}
		return e.ID, true
	}
}

// BuildTarget maps a notification payload to a route by its type field.
func BuildTarget(payload map[string]string, lookup EventLookup) Target {
	data := make(map[string]string, len(payload))
	for k, v := range payload {
		data[k] = v
	}
	t := Target{Route: RouteHome, Data: data}

	switch strings.ToLower(payload[notification.PayloadType]) {
	case notification.PayloadTypeChat:
		q := []string{
			"sourceType=" + url.QueryEscape(payload[notification.PayloadSourceType]),
			"sourceId=" + url.QueryEscape(payload[notification.PayloadSourceID]),
			"messageId=" + url.QueryEscape(payload[notification.PayloadMessageID]),
		}
		t.Route = "/chat?" + strings.Join(q, "&")
	case notification.PayloadTypeMatch:
		match, err := strconv.Atoi(payload[notification.PayloadMatchNumber])
		if err != nil || match <= 0 {
			return t
		}
		eventID, err := strconv.ParseInt(payload[notification.PayloadEventID], 10, 64)
		if err != nil || eventID <= 0 {
			var ok bool
			if lookup == nil {
				return t
			}
			if eventID, ok = lookup(payload[notification.PayloadEventCode]); !ok {
				return t
			}
			t.Data[notification.PayloadEventID] = strconv.FormatInt(eventID, 10)
		}
		t.Route = fmt.Sprintf("/events/%d/matches/%d", eventID, match)
	}
	return t
}

// NavigationRouter holds at most one navigation target waiting for the UI to consume it.
type NavigationRouter struct {
	lookup EventLookup
	logger *logrus.Entry

	mu      sync.Mutex
	pending *Target
}

func NewNavigationRouter(lookup EventLookup, logger *logrus.Entry) *NavigationRouter {
	return &NavigationRouter{lookup: lookup, logger: logger.WithField("component", "navigation")}
}

// SetPending replaces the pending target with one built from payload.
func (r *NavigationRouter) SetPending(payload map[string]string) Target {
	t := BuildTarget(payload, r.lookup)
	r.mu.Lock()
	r.pending = &t
	r.mu.Unlock()
	r.logger.WithField("route", t.Route).Debug("Navigation target pending")
	return t
}

func (r *NavigationRouter) Pending() (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Target{}, false
	}
	return *r.pending, true
}

// TryExecutePendingNavigation hands the pending target to navigate and clears it whether
// or not navigation succeeded. It reports whether a target was navigated to.
func (r *NavigationRouter) TryExecutePendingNavigation(navigate func(Target) error) bool {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	if pending == nil {
		return false
	}
	if err := navigate(*pending); err != nil {
		r.logger.WithError(err).WithField("route", pending.Route).Warn("Navigation failed, dropping target")
		return false
	}
	return true
}
