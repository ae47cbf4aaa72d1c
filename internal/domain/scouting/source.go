// internal/domain/scouting/source.go
package scouting

import (
	"context"
	"encoding/json"
)

// DatasetSource is the part of the backend service the preloader and sync trigger use.
// Datasets are returned as raw JSON items so the offline mirror keeps every upstream field.
type DatasetSource interface {
	GetConfig(ctx context.Context) (json.RawMessage, error)
	GetEvents(ctx context.Context) ([]json.RawMessage, error)
	GetTeams(ctx context.Context) ([]json.RawMessage, error)
	GetMatches(ctx context.Context, eventCode string) ([]json.RawMessage, error)
	GetMetrics(ctx context.Context) ([]json.RawMessage, error)
	GetScoutingData(ctx context.Context, eventCode string) ([]json.RawMessage, error)
	SubmitScouting(ctx context.Context, s Submission) (int64, error)
}
