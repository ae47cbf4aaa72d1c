// internal/domain/notification/types.go
package notification

import (
	"time"

	"offline_sync_agent/internal/domain/wire"
)

// Scheduled is a notification the backend plans to deliver at ScheduledFor.
type Scheduled struct {
	ID               string          `json:"id"`
	NotificationType string          `json:"notificationType"`
	Title            string          `json:"title,omitempty"`
	Message          string          `json:"message,omitempty"`
	ScheduledFor     time.Time       `json:"scheduledFor"`
	Status           Status          `json:"status"`
	MatchNumber      int             `json:"matchNumber,omitempty"`
	EventCode        string          `json:"eventCode,omitempty"`
	EventID          int64           `json:"eventId,omitempty"`
	DeliveryMethods  map[string]bool `json:"deliveryMethods,omitempty"`
}

// WantsPush reports whether push delivery is enabled for this notification.
func (s Scheduled) WantsPush() bool {
	return s.DeliveryMethods["push"]
}

func (s *Scheduled) UnmarshalJSON(data []byte) error {
	f, err := wire.Parse(data)
	if err != nil {
		return err
	}
	*s = Scheduled{
		ID:               f.String("id", "notificationId"),
		NotificationType: f.String("notificationType", "type"),
		Title:            f.String("title"),
		Message:          f.String("message", "body"),
		ScheduledFor:     f.Time("scheduledFor", "scheduledTime", "sendAt"),
		Status:           Status(f.String("status")),
		MatchNumber:      int(f.Int64("matchNumber")),
		EventCode:        f.String("eventCode"),
		EventID:          f.Int64("eventId"),
		DeliveryMethods:  deliveryMethods(f),
	}
	return nil
}

// Past is a notification the backend already sent, possibly while this client was offline.
type Past struct {
	ID               string          `json:"id"`
	NotificationType string          `json:"notificationType"`
	Title            string          `json:"title,omitempty"`
	Message          string          `json:"message,omitempty"`
	SentAt           time.Time       `json:"sentAt"`
	ScheduledFor     time.Time       `json:"scheduledFor,omitempty"`
	MatchNumber      int             `json:"matchNumber,omitempty"`
	EventCode        string          `json:"eventCode,omitempty"`
	EventID          int64           `json:"eventId,omitempty"`
	DeliveryMethods  map[string]bool `json:"deliveryMethods,omitempty"`
}

func (p *Past) UnmarshalJSON(data []byte) error {
	f, err := wire.Parse(data)
	if err != nil {
		return err
	}
	*p = Past{
		ID:               f.String("id", "notificationId"),
		NotificationType: f.String("notificationType", "type"),
		Title:            f.String("title"),
		Message:          f.String("message", "body"),
		SentAt:           f.Time("sentAt", "createdAt"),
		ScheduledFor:     f.Time("scheduledFor"),
		MatchNumber:      int(f.Int64("matchNumber")),
		EventCode:        f.String("eventCode"),
		EventID:          f.Int64("eventId"),
		DeliveryMethods:  deliveryMethods(f),
	}
	if p.SentAt.IsZero() {
		p.SentAt = p.ScheduledFor
	}
	return nil
}

// ChatSource identifies the conversation that most recently had activity.
type ChatSource struct {
	Type ChatSourceType `json:"type"`
	ID   string         `json:"id"`
	Name string         `json:"name,omitempty"`
}

// ChatMessage is one message of a conversation.
type ChatMessage struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"senderId"`
	SenderName string         `json:"senderName,omitempty"`
	Text       string         `json:"text"`
	CreatedAt  time.Time      `json:"createdAt"`
	SourceType ChatSourceType `json:"sourceType,omitempty"`
	SourceID   string         `json:"sourceId,omitempty"`
	Read       bool           `json:"read"`
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	f, err := wire.Parse(data)
	if err != nil {
		return err
	}
	*m = ChatMessage{
		ID:         f.String("id", "messageId"),
		SenderID:   f.String("senderId", "from", "userId"),
		SenderName: f.String("senderName", "fromName", "username"),
		Text:       f.String("text", "message", "content", "body"),
		CreatedAt:  f.Time("createdAt", "timestamp", "sentAt"),
		SourceType: ChatSourceType(f.String("sourceType", "conversationType")),
		SourceID:   f.String("sourceId", "conversationId", "groupId"),
		Read:       f.Bool("read", "isRead"),
	}
	return nil
}

// ChatState summarizes unread chat activity for the signed-in user.
type ChatState struct {
	UnreadCount    int           `json:"unreadCount"`
	LastSource     *ChatSource   `json:"lastSource,omitempty"`
	UnreadMessages []ChatMessage `json:"unreadMessages,omitempty"`
}

func (c *ChatState) UnmarshalJSON(data []byte) error {
	f, err := wire.Parse(data)
	if err != nil {
		return err
	}
	*c = ChatState{UnreadCount: int(f.Int64("unreadCount", "unread"))}

	if src := f.Object("lastSource", "lastConversation"); len(src) > 0 {
		c.LastSource = &ChatSource{
			Type: ChatSourceType(src.String("type", "sourceType")),
			ID:   src.String("id", "sourceId"),
			Name: src.String("name", "title"),
		}
	}
	c.UnreadMessages = DecodeMessages(f, "unreadMessages", "messages")
	return nil
}

// DecodeMessages decodes a message list field, skipping malformed entries.
func DecodeMessages(f wire.Fields, names ...string) []ChatMessage {
	items := f.List(names...)
	out := make([]ChatMessage, 0, len(items))
	for _, item := range items {
		var m ChatMessage
		if err := m.UnmarshalJSON(item); err != nil || m.ID == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func deliveryMethods(f wire.Fields) map[string]bool {
	methods := f.Object("deliveryMethods", "delivery")
	if len(methods) == 0 {
		return nil
	}
	out := make(map[string]bool, len(methods))
	for name := range methods {
		out[name] = methods.Bool(name)
	}
	return out
}
