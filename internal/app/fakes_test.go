package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"offline_sync_agent/internal/domain/notification"
	"offline_sync_agent/internal/domain/scouting"
)

// memoryStore is a cache.Store keeping JSON-encoded values and write times in memory.
type memoryStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	updated map[string]time.Time
	now     func() time.Time
	writes  map[string]int
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		values:  make(map[string][]byte),
		updated: make(map[string]time.Time),
		writes:  make(map[string]int),
		now:     now,
	}
}

func (m *memoryStore) Write(_ context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = data
	m.updated[key] = m.now()
	m.writes[key]++
	return true
}

func (m *memoryStore) Read(_ context.Context, key string, dst any) bool {
	m.mu.Lock()
	data, ok := m.values[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (m *memoryStore) Remove(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.updated, key)
}

func (m *memoryStore) Age(_ context.Context, key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.updated[key]
	if !ok {
		return 0, false
	}
	return m.now().Sub(t), true
}

func (m *memoryStore) IsExpired(ctx context.Context, key string, maxAge time.Duration) bool {
	age, ok := m.Age(ctx, key)
	return !ok || age > maxAge
}

func (m *memoryStore) writeCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

type shown struct {
	title string
	body  string
	id    int32
	data  map[string]string
}

// recordingPresenter records every presented notification.
type recordingPresenter struct {
	mu    sync.Mutex
	shown []shown
	err   error
}

func (p *recordingPresenter) Show(ctx context.Context, title, body string, id int32) error {
	return p.ShowWithData(ctx, title, body, id, nil)
}

func (p *recordingPresenter) ShowWithData(_ context.Context, title, body string, id int32, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.shown = append(p.shown, shown{title: title, body: body, id: id, data: data})
	return nil
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.shown)
}

// fakeNotificationSource serves canned backend replies.
type fakeNotificationSource struct {
	past         []notification.Past
	scheduled    []notification.Scheduled
	chat         *notification.ChatState
	messages     []notification.ChatMessage
	pastErr      error
	scheduledErr error
	chatErr      error
	messageCalls int
}

func (f *fakeNotificationSource) GetPastNotifications(context.Context, int) ([]notification.Past, error) {
	return f.past, f.pastErr
}

func (f *fakeNotificationSource) GetScheduledNotifications(context.Context, int) ([]notification.Scheduled, error) {
	return f.scheduled, f.scheduledErr
}

func (f *fakeNotificationSource) GetChatState(context.Context) (*notification.ChatState, error) {
	if f.chat == nil && f.chatErr == nil {
		return &notification.ChatState{}, nil
	}
	return f.chat, f.chatErr
}

func (f *fakeNotificationSource) GetChatMessages(context.Context, notification.ChatSourceType, string, int) ([]notification.ChatMessage, error) {
	f.messageCalls++
	return f.messages, nil
}

var errBackendDown = errors.New("backend unavailable")

// fakeDatasetSource serves canned datasets and records calls per dataset.
type fakeDatasetSource struct {
	mu          sync.Mutex
	config      json.RawMessage
	events      []scouting.Event
	eventsErr   error
	teamsErr    error
	scouting    []scouting.Submission
	scoutingRaw []json.RawMessage // when set, served instead of scouting
	submitErr   error
	nextID      int64
	calls       map[string]int
	submitted   []scouting.Submission
	block       chan struct{} // when set, GetConfig waits on it
}

func newFakeDatasetSource() *fakeDatasetSource {
	return &fakeDatasetSource{
		config: json.RawMessage(`{"currentEventCode":"CASJ","season":2024}`),
		events: []scouting.Event{{ID: 7, Code: "CASJ", Name: "Silicon Valley Regional"}},
		scouting: []scouting.Submission{
			{ID: 1, TeamNumber: 254, MatchID: 3, EventCode: "CASJ"},
		},
		nextID: 100,
		calls:  make(map[string]int),
	}
}

func (f *fakeDatasetSource) called(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeDatasetSource) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeDatasetSource) GetConfig(ctx context.Context) (json.RawMessage, error) {
	f.called("config")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.config, nil
}

func (f *fakeDatasetSource) GetEvents(context.Context) ([]json.RawMessage, error) {
	f.called("events")
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return rawItems(f.events), nil
}

func (f *fakeDatasetSource) GetTeams(context.Context) ([]json.RawMessage, error) {
	f.called("teams")
	if f.teamsErr != nil {
		return nil, f.teamsErr
	}
	return []json.RawMessage{json.RawMessage(`{"teamNumber":254}`)}, nil
}

func (f *fakeDatasetSource) GetMatches(_ context.Context, eventCode string) ([]json.RawMessage, error) {
	f.called("matches:" + eventCode)
	return []json.RawMessage{json.RawMessage(`{"matchNumber":1}`)}, nil
}

func (f *fakeDatasetSource) GetMetrics(context.Context) ([]json.RawMessage, error) {
	f.called("metrics")
	return []json.RawMessage{json.RawMessage(`{"name":"autoPoints"}`)}, nil
}

func (f *fakeDatasetSource) GetScoutingData(_ context.Context, eventCode string) ([]json.RawMessage, error) {
	f.called("scouting:" + eventCode)
	if f.scoutingRaw != nil {
		return f.scoutingRaw, nil
	}
	return rawItems(f.scouting), nil
}

func rawItems[T any](items []T) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			panic(err)
		}
		out = append(out, data)
	}
	return out
}

func (f *fakeDatasetSource) SubmitScouting(_ context.Context, s scouting.Submission) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.submitted = append(f.submitted, s)
	f.nextID++
	return f.nextID, nil
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
