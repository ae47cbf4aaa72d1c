// internal/domain/scouting/submission.go
package scouting

import (
	"encoding/json"
	"fmt"
	"time"

	"offline_sync_agent/internal/domain/wire"

	"github.com/google/uuid"
)

// Submission is one scouting record. Records created offline carry a client-generated
// OfflineID and have ID 0 until the backend assigns one.
type Submission struct {
	OfflineID  string          `json:"offlineId,omitempty"`
	ID         int64           `json:"id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	TeamNumber int64           `json:"teamNumber"`
	MatchID    int64           `json:"matchId"`
	EventCode  string          `json:"eventCode,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewOfflineID returns a fresh client-side identity for a submission.
func NewOfflineID() string {
	return "offline-" + uuid.NewString()
}

// IdentityKey returns the key used to deduplicate submissions: the offline id, else the
// server id, else timestamp+team+match. The last form can collide for two records created
// in the same millisecond for the same team and match.
func (s Submission) IdentityKey() string {
	switch {
	case s.OfflineID != "":
		return "offline:" + s.OfflineID
	case s.ID > 0:
		return fmt.Sprintf("id:%d", s.ID)
	default:
		return fmt.Sprintf("fallback:%d:%d:%d", s.Timestamp.UnixMilli(), s.TeamNumber, s.MatchID)
	}
}

// SameIdentity reports whether a and b describe the same record.
func SameIdentity(a, b Submission) bool {
	return a.IdentityKey() == b.IdentityKey()
}

func (s *Submission) UnmarshalJSON(data []byte) error {
	f, err := wire.Parse(data)
	if err != nil {
		return err
	}
	*s = Submission{
		OfflineID:  f.String("offlineId", "offline_id", "clientId"),
		ID:         f.Int64("id"),
		Timestamp:  f.Time("timestamp", "createdAt"),
		TeamNumber: f.Int64("teamNumber", "team", "subjectId"),
		MatchID:    f.Int64("matchId", "match", "matchNumber"),
		EventCode:  f.String("eventCode", "event"),
	}
	if raw, ok := f.Raw("data", "payload"); ok {
		s.Data = append(json.RawMessage(nil), raw...)
	}
	return nil
}
