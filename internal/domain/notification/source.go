// internal/domain/notification/source.go
package notification

import "context"

// Source is the part of the backend service the poller reads from.
// Implementations return an error for transport failures and for replies with success=false.
type Source interface {
	GetPastNotifications(ctx context.Context, limit int) ([]Past, error)
	GetScheduledNotifications(ctx context.Context, limit int) ([]Scheduled, error)
	GetChatState(ctx context.Context) (*ChatState, error)
	GetChatMessages(ctx context.Context, sourceType ChatSourceType, sourceID string, limit int) ([]ChatMessage, error)
}
