// internal/domain/notification/shared_types.go
package notification

// Kind tags where a tracked notification came from.
type Kind string

const (
	KindScheduled Kind = "scheduled"
	KindPast      Kind = "past"
	KindChat      Kind = "chat"
)

// Status of a scheduled notification on the backend.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
)

// ChatSourceType identifies the kind of conversation a chat message belongs to.
type ChatSourceType string

const (
	ChatSourceUser  ChatSourceType = "user"
	ChatSourceGroup ChatSourceType = "group"
)

// Payload keys understood by the navigation router.
const (
	PayloadType        = "type"
	PayloadSourceType  = "sourceType"
	PayloadSourceID    = "sourceId"
	PayloadMessageID   = "messageId"
	PayloadEventID     = "eventId"
	PayloadEventCode   = "eventCode"
	PayloadMatchNumber = "matchNumber"

	PayloadTypeChat  = "chat"
	PayloadTypeMatch = "match"
)
