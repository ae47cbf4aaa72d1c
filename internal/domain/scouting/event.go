// internal/domain/scouting/event.go
package scouting

import (
	"strings"
	"time"

	"offline_sync_agent/internal/domain/wire"
)

// Event is a competition the team attends.
type Event struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	f, err := wire.Parse(data)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        f.Int64("id", "eventId"),
		Code:      f.String("code", "eventCode", "key"),
		Name:      f.String("name", "eventName"),
		StartDate: f.Time("startDate", "start"),
		EndDate:   f.Time("endDate", "end"),
	}
	return nil
}

// FindEvent looks an event up by code, case-insensitively.
func FindEvent(events []Event, code string) (Event, bool) {
	for _, e := range events {
		if code != "" && strings.EqualFold(e.Code, code) {
			return e, true
		}
	}
	return Event{}, false
}

// Config is the app-wide configuration published by the backend.
// Only the fields this client acts on are decoded; the rest is cached verbatim.
type Config struct {
	CurrentEventCode string `json:"currentEventCode"`
	Season           int    `json:"season,omitempty"`
}

func (c *Config) UnmarshalJSON(data []byte) error {
	f, err := wire.Parse(data)
	if err != nil {
		return err
	}
	*c = Config{
		CurrentEventCode: f.String("currentEventCode", "currentEvent", "activeEvent"),
		Season:           int(f.Int64("season", "year")),
	}
	return nil
}
