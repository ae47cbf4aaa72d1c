// internal/domain/notification/tracking.go
package notification

import "time"

// MaxNotifiedChatMessages bounds the chat dedup list; the oldest ids are evicted first.
const MaxNotifiedChatMessages = 100

// SentNotification records one notification handed to the presenter.
type SentNotification struct {
	NotificationID string    `json:"notificationId"`
	SentAt         time.Time `json:"sentAt"`
	ScheduledFor   time.Time `json:"scheduledFor"`
	Type           string    `json:"type"`
	Kind           Kind      `json:"kind"`
	MatchNumber    int       `json:"matchNumber,omitempty"`
	EventCode      string    `json:"eventCode,omitempty"`
	WasMissed      bool      `json:"wasMissed"`
}

// TrackingState is the poller's persisted dedup memory.
type TrackingState struct {
	LastPollTime           time.Time          `json:"lastPollTime"`
	LastCleanupTime        time.Time          `json:"lastCleanupTime"`
	SentNotifications      []SentNotification `json:"sentNotifications"`
	NotifiedChatMessageIDs []string           `json:"notifiedChatMessageIds"`
}

// NewTrackingState starts tracking with a poll time one catch-up window in the past,
// so the first cycle picks up everything still inside the window.
func NewTrackingState(now time.Time, catchUpWindow time.Duration) *TrackingState {
	return &TrackingState{
		LastPollTime:           now.Add(-catchUpWindow),
		LastCleanupTime:        now,
		SentNotifications:      make([]SentNotification, 0),
		NotifiedChatMessageIDs: make([]string, 0),
	}
}

// HasSent reports whether a notification id was already presented.
func (s *TrackingState) HasSent(id string) bool {
	for _, n := range s.SentNotifications {
		if n.NotificationID == id {
			return true
		}
	}
	return false
}

// RecordSent appends a sent entry unless the id is already tracked.
func (s *TrackingState) RecordSent(n SentNotification) {
	if s.HasSent(n.NotificationID) {
		return
	}
	s.SentNotifications = append(s.SentNotifications, n)
}

// HasNotifiedChat reports whether a chat message id was already presented.
func (s *TrackingState) HasNotifiedChat(messageID string) bool {
	for _, id := range s.NotifiedChatMessageIDs {
		if id == messageID {
			return true
		}
	}
	return false
}

// RecordChat appends a chat message id, evicting the oldest beyond MaxNotifiedChatMessages.
func (s *TrackingState) RecordChat(messageID string) {
	if s.HasNotifiedChat(messageID) {
		return
	}
	s.NotifiedChatMessageIDs = append(s.NotifiedChatMessageIDs, messageID)
	if over := len(s.NotifiedChatMessageIDs) - MaxNotifiedChatMessages; over > 0 {
		s.NotifiedChatMessageIDs = append([]string(nil), s.NotifiedChatMessageIDs[over:]...)
	}
}

// Prune drops sent entries older than cutoff and returns how many were removed.
func (s *TrackingState) Prune(cutoff time.Time) int {
	kept := s.SentNotifications[:0]
	for _, n := range s.SentNotifications {
		if n.SentAt.Before(cutoff) {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(s.SentNotifications) - len(kept)
	s.SentNotifications = kept
	return removed
}

// Normalize repairs a state decoded from an older or partial snapshot.
func (s *TrackingState) Normalize(now time.Time, catchUpWindow time.Duration) {
	if s.LastPollTime.IsZero() {
		s.LastPollTime = now.Add(-catchUpWindow)
	}
	if s.LastCleanupTime.IsZero() {
		s.LastCleanupTime = now
	}
	if s.SentNotifications == nil {
		s.SentNotifications = make([]SentNotification, 0)
	}
	if s.NotifiedChatMessageIDs == nil {
		s.NotifiedChatMessageIDs = make([]string, 0)
	}
	if over := len(s.NotifiedChatMessageIDs) - MaxNotifiedChatMessages; over > 0 {
		s.NotifiedChatMessageIDs = s.NotifiedChatMessageIDs[over:]
	}
}
