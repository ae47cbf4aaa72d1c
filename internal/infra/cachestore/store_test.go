package cachestore

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"offline_sync_agent/internal/domain/cache"
	"offline_sync_agent/internal/infra/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryBackend is an in-memory fast backend whose writes can be made to fail.
type memoryBackend struct {
	mu       sync.Mutex
	values   map[string][]byte
	failPuts bool
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{values: make(map[string][]byte)}
}

func (m *memoryBackend) Name() string { return "memory" }

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts {
		return errors.New("keychain unavailable")
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memoryBackend) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memoryBackend) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

func newTestStore(t *testing.T) (*Store, *memoryBackend, *FileBackend, *fakeClock) {
	t.Helper()
	file, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	fast := newMemoryBackend()
	clock := &fakeClock{now: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
	store, err := New(Options{
		Fast:              fast,
		File:              file,
		MaxFastValueBytes: 256,
		KnownKeys:         cache.KnownKeys(),
		Now:               clock.Now,
		Logger:            logger.Discard(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store, fast, file, clock
}

type eventConfig struct {
	Season           int      `json:"season"`
	CurrentEventCode string   `json:"currentEventCode"`
	TeamNumber       int      `json:"teamNumber"`
	Metrics          []string `json:"metrics"`
	AllowOffline     bool     `json:"allowOffline"`
	PollSeconds      int      `json:"pollSeconds"`
	Region           string   `json:"region"`
	Theme            string   `json:"theme"`
	Locale           string   `json:"locale"`
	Version          string   `json:"version"`
}

func TestStoreRoundTrip(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	in := eventConfig{
		Season: 2024, CurrentEventCode: "CASJ", TeamNumber: 254, Metrics: []string{"auto", "teleop"},
		AllowOffline: true, PollSeconds: 60, Region: "CA", Theme: "dark", Locale: "en", Version: "1.4.0",
	}
	if !store.Write(ctx, cache.KeyConfig, in) {
		t.Fatal("Expected write to succeed")
	}

	var out eventConfig
	if !store.Read(ctx, cache.KeyConfig, &out) {
		t.Fatal("Expected cached value")
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("Round trip mismatch: %+v != %+v", in, out)
	}
}

func TestStoreLargeValueFallsBackToFile(t *testing.T) {
	store, fast, file, _ := newTestStore(t)
	ctx := context.Background()

	small := "short"
	large := strings.Repeat("r", 1024)

	store.Write(ctx, cache.KeyTeams, small)
	if !fast.has(cache.KeyTeams) {
		t.Fatal("Expected small value in fast backend")
	}

	store.Write(ctx, cache.KeyTeams, large)
	if fast.has(cache.KeyTeams) {
		t.Error("Expected stale fast copy to be removed after large write")
	}
	if _, err := file.Get(ctx, cache.KeyTeams); err != nil {
		t.Errorf("Expected large value in file backend: %v", err)
	}

	var got string
	if !store.Read(ctx, cache.KeyTeams, &got) || got != large {
		t.Errorf("Expected large value back, got %d bytes", len(got))
	}
}

func TestStoreFastFailureFallsBackToFile(t *testing.T) {
	store, fast, file, _ := newTestStore(t)
	ctx := context.Background()
	fast.failPuts = true

	if !store.Write(ctx, cache.KeyEvents, []string{"CASJ"}) {
		t.Fatal("Expected write to succeed through file backend")
	}
	if _, err := file.Get(ctx, cache.KeyEvents); err != nil {
		t.Errorf("Expected value in file backend: %v", err)
	}
	if _, ok := store.UpdatedAt(ctx, cache.KeyEvents); !ok {
		t.Error("Expected updated marker to land in the file backend")
	}
}

func TestStoreMarkerFallbackReplacesFastCopy(t *testing.T) {
	store, fast, _, clock := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, cache.KeyConfig, map[string]int{"season": 2024})
	clock.Advance(25 * time.Hour)

	fast.failPuts = true
	store.Write(ctx, cache.KeyConfig, map[string]int{"season": 2025})

	updated, ok := store.UpdatedAt(ctx, cache.KeyConfig)
	if !ok || !updated.Equal(clock.Now()) {
		t.Errorf("Expected updatedAt %s, got %s (%v)", clock.Now(), updated, ok)
	}
	if store.IsExpired(ctx, cache.KeyConfig, 24*time.Hour) {
		t.Error("Expected rewrite through the file backend to refresh the key")
	}
	if fast.has(cache.KeyConfig + cache.UpdatedSuffix) {
		t.Error("Expected stale fast marker removed")
	}
}

func TestStoreFreshness(t *testing.T) {
	store, _, _, clock := newTestStore(t)
	ctx := context.Background()

	if !store.IsExpired(ctx, cache.KeyConfig, 24*time.Hour) {
		t.Error("Expected never-written key to be expired")
	}

	store.Write(ctx, cache.KeyConfig, map[string]int{"season": 2024})
	created, _ := store.CreatedAt(ctx, cache.KeyConfig)

	if store.IsExpired(ctx, cache.KeyConfig, 24*time.Hour) {
		t.Error("Expected fresh key right after write")
	}

	clock.Advance(25 * time.Hour)
	if !store.IsExpired(ctx, cache.KeyConfig, 24*time.Hour) {
		t.Error("Expected key to expire after 25h with maxAge 24h")
	}
	if age, ok := store.Age(ctx, cache.KeyConfig); !ok || age != 25*time.Hour {
		t.Errorf("Expected age 25h, got %s (%v)", age, ok)
	}

	store.Write(ctx, cache.KeyConfig, map[string]int{"season": 2025})
	createdAgain, _ := store.CreatedAt(ctx, cache.KeyConfig)
	updated, _ := store.UpdatedAt(ctx, cache.KeyConfig)
	if !created.Equal(createdAgain) {
		t.Errorf("createdAt changed on rewrite: %s -> %s", created, createdAgain)
	}
	if created.After(updated) {
		t.Errorf("createdAt %s after updatedAt %s", created, updated)
	}
	if store.IsExpired(ctx, cache.KeyConfig, 24*time.Hour) {
		t.Error("Expected rewrite to refresh the key")
	}
}

func TestStoreLegacyTimestampFallback(t *testing.T) {
	store, fast, _, clock := newTestStore(t)
	ctx := context.Background()

	written := clock.Now().Add(-2 * time.Hour)
	fast.values[cache.KeyMetrics] = []byte(`["auto"]`)
	fast.values[cache.KeyMetrics+cache.TimestampSuffix] = []byte(strconv.FormatInt(written.UnixMilli(), 10))

	age, ok := store.Age(ctx, cache.KeyMetrics)
	if !ok || age != 2*time.Hour {
		t.Errorf("Expected 2h age from legacy marker, got %s (%v)", age, ok)
	}
}

func TestStoreCorruptValueIsMiss(t *testing.T) {
	store, fast, _, _ := newTestStore(t)
	fast.values[cache.KeyEvents] = []byte(`{"events": [`)

	var out map[string]any
	if store.Read(context.Background(), cache.KeyEvents, &out) {
		t.Error("Expected corrupt value to read as absent")
	}
}

func TestStoreBinary(t *testing.T) {
	store, fast, file, _ := newTestStore(t)
	ctx := context.Background()
	image := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}

	// legacy base64 data URL written by older clients
	fast.values[cache.KeyProfileImage] = []byte(`"data:image/png;base64,` + base64.StdEncoding.EncodeToString(image) + `"`)
	got, ok := store.ReadBinary(ctx, cache.KeyProfileImage)
	if !ok || !reflect.DeepEqual(got, image) {
		t.Fatalf("Expected legacy base64 value decoded, got %v (%v)", got, ok)
	}

	if !store.WriteBinary(ctx, cache.KeyProfileImage, image) {
		t.Fatal("Expected binary write to succeed")
	}
	if fast.has(cache.KeyProfileImage) {
		t.Error("Expected legacy base64 copy to be removed")
	}
	if filepath.Dir(file.BlobPath(cache.KeyProfileImage)) == filepath.Dir(file.Path(cache.KeyProfileImage)) {
		t.Error("Expected binary payload to live apart from value files")
	}
	got, ok = store.ReadBinary(ctx, cache.KeyProfileImage)
	if !ok || !reflect.DeepEqual(got, image) {
		t.Errorf("Expected raw bytes back, got %v", got)
	}
}

func TestStoreRemove(t *testing.T) {
	store, fast, _, _ := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, cache.KeyTeams, []int{254, 1678})
	store.Remove(ctx, cache.KeyTeams)

	var teams []int
	if store.Read(ctx, cache.KeyTeams, &teams) {
		t.Error("Expected value to be gone")
	}
	for _, suffix := range []string{cache.CreatedSuffix, cache.UpdatedSuffix, cache.TimestampSuffix} {
		if fast.has(cache.KeyTeams + suffix) {
			t.Errorf("Expected marker %s to be removed", suffix)
		}
	}
	if !store.IsExpired(ctx, cache.KeyTeams, time.Hour) {
		t.Error("Expected removed key to count as expired")
	}
}

func TestStoreClearAll(t *testing.T) {
	store, fast, file, _ := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, cache.KeyConfig, "config")
	store.Write(ctx, cache.MatchesKey("CASJ"), strings.Repeat("m", 1024))
	store.Write(ctx, cache.KeyTrackingState, map[string]any{"lastPollTime": "x"})
	store.WriteBinary(ctx, cache.KeyProfileImage, []byte{1, 2, 3})
	// left behind by a previous process, only reachable through the prefix convention
	fast.values[cache.KeyPrefix+"legacy_dataset"] = []byte(`[]`)
	fast.values["unrelated_setting"] = []byte(`true`)

	removed := store.ClearAll(ctx)
	if removed < 5 {
		t.Errorf("Expected at least 5 keys removed, got %d", removed)
	}

	for _, key := range []string{cache.KeyConfig, cache.MatchesKey("CASJ"), cache.KeyTrackingState, cache.KeyPrefix + "legacy_dataset"} {
		if _, ok := store.ReadRaw(ctx, key); ok {
			t.Errorf("Expected %s to be cleared", key)
		}
	}
	if _, ok := store.ReadBinary(ctx, cache.KeyProfileImage); ok {
		t.Error("Expected binary cache to be cleared")
	}
	if !fast.has("unrelated_setting") {
		t.Error("Expected keys outside the cache convention to survive")
	}
	if keys, _ := file.Keys(ctx); len(keys) != 0 {
		t.Errorf("Expected empty file backend, got %v", keys)
	}
}

func TestStoreWithoutFastBackend(t *testing.T) {
	file, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := New(Options{File: file, Logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	store.Write(ctx, cache.KeyEvents, []string{"CASJ", "CAPH"})
	var events []string
	if !store.Read(ctx, cache.KeyEvents, &events) || len(events) != 2 {
		t.Errorf("Expected file-only store to round trip, got %v", events)
	}
}
