// internal/app/preloader.go
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"offline_sync_agent/internal/domain/cache"
	"offline_sync_agent/internal/domain/scouting"

	"github.com/sirupsen/logrus"
)

// Dataset names one logical dataset mirrored from the backend.
type Dataset string

const (
	DatasetConfig   Dataset = "config"
	DatasetEvents   Dataset = "events"
	DatasetTeams    Dataset = "teams"
	DatasetMatches  Dataset = "matches"
	DatasetMetrics  Dataset = "metrics"
	DatasetScouting Dataset = "scouting"
)

// DefaultMaxAges is how long each dataset stays fresh in the cache.
var DefaultMaxAges = map[Dataset]time.Duration{
	DatasetConfig:   24 * time.Hour,
	DatasetEvents:   12 * time.Hour,
	DatasetTeams:    12 * time.Hour,
	DatasetMatches:  6 * time.Hour,
	DatasetMetrics:  24 * time.Hour,
	DatasetScouting: time.Hour,
}

// DatasetKey returns the cache key of a dataset. Matches and scouting are per event.
func DatasetKey(d Dataset, eventCode string) string {
	switch d {
	case DatasetConfig:
		return cache.KeyConfig
	case DatasetEvents:
		return cache.KeyEvents
	case DatasetTeams:
		return cache.KeyTeams
	case DatasetMatches:
		return cache.MatchesKey(eventCode)
	case DatasetMetrics:
		return cache.KeyMetrics
	case DatasetScouting:
		return cache.ScoutingKey(eventCode)
	}
	return cache.KeyPrefix + string(d)
}

// DeletionFilter drops raw scouting records the user deleted locally.
type DeletionFilter interface {
	FilterDeletedRaw(ctx context.Context, items []json.RawMessage) []json.RawMessage
}

// PreloadReport summarizes one PreloadAll run.
type PreloadReport struct {
	Skipped    bool
	Reason     string
	EventCode  string
	Fetched    []Dataset
	Fresh      []Dataset
	Empty      []Dataset // fetched fine but nothing came back, cached value kept
	Failed     []Dataset
	Unresolved []Dataset // skipped because the current event could not be resolved
}

// Preloader refreshes expired datasets from the backend into the cache.
type Preloader struct {
	source     scouting.DatasetSource
	store      cache.Store
	deletions  DeletionFilter
	hasSession func() bool
	maxAges    map[Dataset]time.Duration
	logger     *logrus.Entry

	running atomic.Bool
}

func NewPreloader(
	source scouting.DatasetSource,
	store cache.Store,
	deletions DeletionFilter,
	hasSession func() bool,
	logger *logrus.Entry,
) *Preloader {
	maxAges := make(map[Dataset]time.Duration, len(DefaultMaxAges))
	for d, age := range DefaultMaxAges {
		maxAges[d] = age
	}
	return &Preloader{
		source:     source,
		store:      store,
		deletions:  deletions,
		hasSession: hasSession,
		maxAges:    maxAges,
		logger:     logger.WithField("component", "preloader"),
	}
}

// SetMaxAge overrides the freshness window of one dataset.
func (p *Preloader) SetMaxAge(d Dataset, maxAge time.Duration) {
	p.maxAges[d] = maxAge
}

// Fresh reports whether the cached copy of a dataset is still within its max age.
func (p *Preloader) Fresh(ctx context.Context, d Dataset, eventCode string) bool {
	return !p.store.IsExpired(ctx, DatasetKey(d, eventCode), p.maxAges[d])
}

// PreloadAll refreshes every dataset in order: config, events, teams, matches, metrics,
// scouting. Without force it does nothing while logged out and skips fresh datasets.
// A call made while another run is active returns at once with Skipped set.
func (p *Preloader) PreloadAll(ctx context.Context, force bool) PreloadReport {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Info("Preload already running, skipping")
		return PreloadReport{Skipped: true, Reason: "already running"}
	}
	defer p.running.Store(false)

	if !force && (p.hasSession == nil || !p.hasSession()) {
		p.logger.Info("No session token, skipping preload")
		return PreloadReport{Skipped: true, Reason: "no session"}
	}

	start := time.Now()
	report := PreloadReport{}

	p.refresh(ctx, &report, DatasetConfig, "", force, func(ctx context.Context) (any, int, error) {
		raw, err := p.source.GetConfig(ctx)
		if err != nil {
			return nil, 0, err
		}
		if len(raw) == 0 || string(raw) == "null" {
			return nil, 0, nil
		}
		return raw, 1, nil
	})
	p.refresh(ctx, &report, DatasetEvents, "", force, func(ctx context.Context) (any, int, error) {
		events, err := p.source.GetEvents(ctx)
		return events, len(events), err
	})
	p.refresh(ctx, &report, DatasetTeams, "", force, func(ctx context.Context) (any, int, error) {
		teams, err := p.source.GetTeams(ctx)
		return teams, len(teams), err
	})

	event, evErr := p.currentEvent(ctx)
	if evErr != nil {
		p.logger.WithError(evErr).Warn("Current event unresolved, skipping matches and scouting data")
		report.Unresolved = append(report.Unresolved, DatasetMatches)
	} else {
		report.EventCode = event.Code
		p.refresh(ctx, &report, DatasetMatches, event.Code, force, func(ctx context.Context) (any, int, error) {
			matches, err := p.source.GetMatches(ctx, event.Code)
			return matches, len(matches), err
		})
	}

	p.refresh(ctx, &report, DatasetMetrics, "", force, func(ctx context.Context) (any, int, error) {
		metrics, err := p.source.GetMetrics(ctx)
		return metrics, len(metrics), err
	})

	if evErr != nil {
		report.Unresolved = append(report.Unresolved, DatasetScouting)
	} else {
		p.refresh(ctx, &report, DatasetScouting, event.Code, force, func(ctx context.Context) (any, int, error) {
			records, err := p.source.GetScoutingData(ctx, event.Code)
			if err != nil {
				return nil, 0, err
			}
			if p.deletions != nil {
				records = p.deletions.FilterDeletedRaw(ctx, records)
			}
			return records, len(records), nil
		})
	}

	p.logger.WithFields(logrus.Fields{
		"fetched":  len(report.Fetched),
		"fresh":    len(report.Fresh),
		"failed":   len(report.Failed),
		"event":    report.EventCode,
		"duration": time.Since(start).String(),
	}).Info("Preload finished")
	return report
}

// refresh fetches one dataset when it is expired (or force is set) and writes it through.
// Failures and empty results leave the cached value untouched.
func (p *Preloader) refresh(
	ctx context.Context,
	report *PreloadReport,
	d Dataset,
	eventCode string,
	force bool,
	fetch func(ctx context.Context) (any, int, error),
) {
	key := DatasetKey(d, eventCode)
	logCtx := p.logger.WithFields(logrus.Fields{"dataset": d, "key": key})

	if !force && p.Fresh(ctx, d, eventCode) {
		logCtx.Debug("Cached dataset is fresh, skipping")
		report.Fresh = append(report.Fresh, d)
		return
	}

	value, n, err := fetch(ctx)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to fetch dataset, keeping cached value")
		report.Failed = append(report.Failed, d)
		return
	}
	if n == 0 {
		logCtx.Info("Backend returned no data, keeping cached value")
		report.Empty = append(report.Empty, d)
		return
	}
	if !p.store.Write(ctx, key, value) {
		logCtx.Warn("Fetched dataset could not be cached")
		report.Failed = append(report.Failed, d)
		return
	}
	logCtx.WithField("items", n).Debug("Dataset refreshed")
	report.Fetched = append(report.Fetched, d)
}

// currentEvent resolves the event named by the cached config against the cached events.
func (p *Preloader) currentEvent(ctx context.Context) (scouting.Event, error) {
	var raw json.RawMessage
	if !p.store.Read(ctx, cache.KeyConfig, &raw) {
		return scouting.Event{}, fmt.Errorf("config not cached")
	}
	var cfg scouting.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return scouting.Event{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.CurrentEventCode == "" {
		return scouting.Event{}, fmt.Errorf("config has no current event")
	}

	var events []scouting.Event
	if !p.store.Read(ctx, cache.KeyEvents, &events) {
		return scouting.Event{}, fmt.Errorf("events not cached")
	}
	event, ok := scouting.FindEvent(events, cfg.CurrentEventCode)
	if !ok {
		return scouting.Event{}, fmt.Errorf("event %s not found", cfg.CurrentEventCode)
	}
	return event, nil
}
