// internal/app/notification_service.go
package app

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"offline_sync_agent/internal/domain/cache"
	"offline_sync_agent/internal/domain/notification"
	domainPresenter "offline_sync_agent/internal/domain/presenter"

	"github.com/sirupsen/logrus"
)

const (
	DefaultCatchUpWindow      = 36 * time.Hour
	DefaultNotificationBuffer = 5 * time.Minute
	DefaultRetentionWindow    = 7 * 24 * time.Hour
	DefaultCleanupInterval    = 24 * time.Hour
	DefaultPageSize           = 50
	DefaultChatShowLimit      = 10
	DefaultStepPause          = 500 * time.Millisecond
)

// NotificationSettings tunes one notification cycle.
type NotificationSettings struct {
	CatchUpWindow   time.Duration
	Buffer          time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
	PageSize        int
	ChatShowLimit   int
	StepPause       time.Duration // pause between the three checks, zero disables it
	Location        *time.Location
}

func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		CatchUpWindow:   DefaultCatchUpWindow,
		Buffer:          DefaultNotificationBuffer,
		Retention:       DefaultRetentionWindow,
		CleanupInterval: DefaultCleanupInterval,
		PageSize:        DefaultPageSize,
		ChatShowLimit:   DefaultChatShowLimit,
		StepPause:       DefaultStepPause,
		Location:        time.Local,
	}
}

// CycleResult counts what one cycle presented.
type CycleResult struct {
	Past      int
	Scheduled int
	Chat      int
	Failures  int // checks or presenter calls that failed
}

// Delivered is the number of notifications shown by the cycle.
func (r CycleResult) Delivered() int {
	return r.Past + r.Scheduled + r.Chat
}

// NotificationService runs poll cycles against the backend and presents anything new.
type NotificationService interface {
	// LoadState restores the dedup memory from the cache. RunCycle calls it lazily.
	LoadState(ctx context.Context)
	RunCycle(ctx context.Context) CycleResult
}

// NotificationServiceImpl implements the NotificationService interface.
type NotificationServiceImpl struct {
	source    notification.Source
	store     cache.Store
	presenter domainPresenter.Presenter
	settings  NotificationSettings
	logger    *logrus.Entry
	now       func() time.Time

	mu     sync.Mutex
	state  *notification.TrackingState
	loaded bool
}

func NewNotificationServiceImpl(
	source notification.Source,
	store cache.Store,
	p domainPresenter.Presenter,
	settings NotificationSettings,
	logger *logrus.Entry,
) *NotificationServiceImpl {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if settings.PageSize <= 0 {
		settings.PageSize = DefaultPageSize
	}
	if settings.ChatShowLimit <= 0 {
		settings.ChatShowLimit = DefaultChatShowLimit
	}
	if settings.CleanupInterval <= 0 {
		settings.CleanupInterval = DefaultCleanupInterval
	}
	return &NotificationServiceImpl{
		source:    source,
		store:     store,
		presenter: p,
		settings:  settings,
		logger:    logger.WithField("component", "notifications"),
		now:       time.Now,
	}
}

// SetClock replaces the time source. Tests use it to pin "now".
func (s *NotificationServiceImpl) SetClock(now func() time.Time) {
	s.now = now
}

func (s *NotificationServiceImpl) LoadState(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
}

func (s *NotificationServiceImpl) loadLocked(ctx context.Context) {
	now := s.now().UTC()
	state := &notification.TrackingState{}
	if s.store.Read(ctx, cache.KeyTrackingState, state) {
		state.Normalize(now, s.settings.CatchUpWindow)
		s.logger.WithFields(logrus.Fields{
			"sent":          len(state.SentNotifications),
			"chat_notified": len(state.NotifiedChatMessageIDs),
		}).Debug("Restored notification tracking state")
	} else {
		state = notification.NewTrackingState(now, s.settings.CatchUpWindow)
		s.logger.Info("No notification tracking state cached, starting fresh")
	}
	s.state = state
	s.loaded = true
}

// RunCycle checks missed, scheduled and chat notifications in that order, then prunes
// and persists the tracking state. A failing check does not stop the others.
func (s *NotificationServiceImpl) RunCycle(ctx context.Context) CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loadLocked(ctx)
	}

	var result CycleResult
	now := s.now().UTC()

	if n, failed, err := s.checkPast(ctx, now); err != nil {
		s.logger.WithError(err).Warn("Missed notification check failed")
		result.Failures++
	} else {
		result.Past, result.Failures = n, result.Failures+failed
	}
	s.pause(ctx)

	if n, failed, err := s.checkScheduled(ctx, now); err != nil {
		s.logger.WithError(err).Warn("Scheduled notification check failed")
		result.Failures++
	} else {
		result.Scheduled, result.Failures = n, result.Failures+failed
	}
	s.pause(ctx)

	if n, failed, err := s.checkChat(ctx); err != nil {
		s.logger.WithError(err).Warn("Chat check failed")
		result.Failures++
	} else {
		result.Chat, result.Failures = n, result.Failures+failed
	}

	s.state.LastPollTime = now
	if now.Sub(s.state.LastCleanupTime) >= s.settings.CleanupInterval {
		removed := s.state.Prune(now.Add(-s.settings.Retention))
		s.state.LastCleanupTime = now
		s.logger.WithField("removed", removed).Debug("Pruned notification tracking state")
	}
	if !s.store.Write(ctx, cache.KeyTrackingState, s.state) {
		s.logger.Warn("Failed to persist notification tracking state")
	}

	s.logger.WithFields(logrus.Fields{
		"past":      result.Past,
		"scheduled": result.Scheduled,
		"chat":      result.Chat,
		"failures":  result.Failures,
	}).Debug("Notification cycle finished")
	return result
}

// checkPast presents notifications sent inside the catch-up window that were never shown.
func (s *NotificationServiceImpl) checkPast(ctx context.Context, now time.Time) (int, int, error) {
	list, err := s.source.GetPastNotifications(ctx, s.settings.PageSize)
	if err != nil {
		return 0, 0, err
	}
	cutoff := now.Add(-s.settings.CatchUpWindow)

	missed := make([]notification.Past, 0, len(list))
	for _, p := range list {
		if p.ID == "" || p.SentAt.IsZero() || p.SentAt.Before(cutoff) || s.state.HasSent(p.ID) {
			continue
		}
		missed = append(missed, p)
	}
	sort.SliceStable(missed, func(i, j int) bool { return missed[i].SentAt.Before(missed[j].SentAt) })

	shown, failed := 0, 0
	for _, p := range missed {
		title, body := formatPast(p, now)
		data := matchPayload(p.NotificationType, p.EventID, p.EventCode, p.MatchNumber)
		if err := s.presenter.ShowWithData(ctx, title, body, DisplayID(notification.KindPast, p.ID), data); err != nil {
			s.logger.WithError(err).WithField("notification_id", p.ID).Warn("Failed to present missed notification")
			failed++
			continue
		}
		s.state.RecordSent(notification.SentNotification{
			NotificationID: p.ID,
			SentAt:         now,
			ScheduledFor:   p.ScheduledFor,
			Type:           p.NotificationType,
			Kind:           notification.KindPast,
			MatchNumber:    p.MatchNumber,
			EventCode:      p.EventCode,
			WasMissed:      true,
		})
		shown++
	}
	return shown, failed, nil
}

// checkScheduled presents pending push notifications due within the buffer.
func (s *NotificationServiceImpl) checkScheduled(ctx context.Context, now time.Time) (int, int, error) {
	list, err := s.source.GetScheduledNotifications(ctx, s.settings.PageSize)
	if err != nil {
		return 0, 0, err
	}
	horizon := now.Add(s.settings.Buffer)

	due := make([]notification.Scheduled, 0, len(list))
	for _, n := range list {
		if n.ID == "" || n.ScheduledFor.IsZero() {
			continue
		}
		if !strings.EqualFold(string(n.Status), string(notification.StatusPending)) || !n.WantsPush() {
			continue
		}
		if n.ScheduledFor.After(horizon) || s.state.HasSent(n.ID) {
			continue
		}
		due = append(due, n)
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })

	shown, failed := 0, 0
	for _, n := range due {
		title, body := formatScheduled(n, now, s.settings.Location)
		data := matchPayload(n.NotificationType, n.EventID, n.EventCode, n.MatchNumber)
		if err := s.presenter.ShowWithData(ctx, title, body, DisplayID(notification.KindScheduled, n.ID), data); err != nil {
			s.logger.WithError(err).WithField("notification_id", n.ID).Warn("Failed to present scheduled notification")
			failed++
			continue
		}
		s.state.RecordSent(notification.SentNotification{
			NotificationID: n.ID,
			SentAt:         now,
			ScheduledFor:   n.ScheduledFor,
			Type:           n.NotificationType,
			Kind:           notification.KindScheduled,
			MatchNumber:    n.MatchNumber,
			EventCode:      n.EventCode,
			WasMissed:      n.ScheduledFor.Before(now.Add(-s.settings.Buffer)),
		})
		shown++
	}
	return shown, failed, nil
}

// checkChat presents unread chat messages not presented before, oldest first.
func (s *NotificationServiceImpl) checkChat(ctx context.Context) (int, int, error) {
	chat, err := s.source.GetChatState(ctx)
	if err != nil {
		return 0, 0, err
	}
	if chat == nil || chat.UnreadCount <= 0 {
		return 0, 0, nil
	}

	messages := chat.UnreadMessages
	if len(messages) == 0 && chat.LastSource != nil && chat.LastSource.ID != "" {
		fetched, err := s.source.GetChatMessages(ctx, chat.LastSource.Type, chat.LastSource.ID, max(chat.UnreadCount, s.settings.ChatShowLimit))
		if err != nil {
			return 0, 0, err
		}
		messages = latestUnread(fetched, chat.UnreadCount)
	}

	fresh := make([]notification.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.ID == "" || s.state.HasNotifiedChat(m.ID) {
			continue
		}
		if chat.LastSource != nil {
			if m.SourceType == "" {
				m.SourceType = chat.LastSource.Type
			}
			if m.SourceID == "" {
				m.SourceID = chat.LastSource.ID
			}
		}
		fresh = append(fresh, m)
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].CreatedAt.Before(fresh[j].CreatedAt) })
	if len(fresh) > s.settings.ChatShowLimit {
		fresh = fresh[:s.settings.ChatShowLimit]
	}

	shown, failed := 0, 0
	for _, m := range fresh {
		title, body := formatChat(m, chat.LastSource)
		data := map[string]string{
			notification.PayloadType:       notification.PayloadTypeChat,
			notification.PayloadSourceType: string(m.SourceType),
			notification.PayloadSourceID:   m.SourceID,
			notification.PayloadMessageID:  m.ID,
		}
		if err := s.presenter.ShowWithData(ctx, title, body, DisplayID(notification.KindChat, m.ID), data); err != nil {
			s.logger.WithError(err).WithField("message_id", m.ID).Warn("Failed to present chat message")
			failed++
			continue
		}
		s.state.RecordChat(m.ID)
		shown++
	}
	return shown, failed, nil
}

// latestUnread keeps the newest limit unread messages of a conversation page.
func latestUnread(messages []notification.ChatMessage, limit int) []notification.ChatMessage {
	unread := make([]notification.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if !m.Read {
			unread = append(unread, m)
		}
	}
	sort.SliceStable(unread, func(i, j int) bool { return unread[i].CreatedAt.Before(unread[j].CreatedAt) })
	if limit > 0 && len(unread) > limit {
		unread = unread[len(unread)-limit:]
	}
	return unread
}

func matchPayload(notificationType string, eventID int64, eventCode string, matchNumber int) map[string]string {
	data := map[string]string{notification.PayloadType: notificationType}
	if matchNumber <= 0 {
		return data
	}
	data[notification.PayloadType] = notification.PayloadTypeMatch
	data[notification.PayloadMatchNumber] = strconv.Itoa(matchNumber)
	if eventID > 0 {
		data[notification.PayloadEventID] = strconv.FormatInt(eventID, 10)
	}
	if eventCode != "" {
		data[notification.PayloadEventCode] = eventCode
	}
	return data
}

func (s *NotificationServiceImpl) pause(ctx context.Context) {
	if s.settings.StepPause <= 0 {
		return
	}
	t := time.NewTimer(s.settings.StepPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
