package cachestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"offline_sync_agent/internal/domain/cache"

	"github.com/sirupsen/logrus"
)

// DefaultMaxFastValueBytes is the practical value ceiling of the fast backend on the
// most constrained target.
const DefaultMaxFastValueBytes = 8 * 1024

// Options configures a Store.
type Options struct {
	Fast              Backend // may be nil; every value then lands in the file backend
	File              *FileBackend
	MaxFastValueBytes int
	KnownKeys         []string // removed by ClearAll even without the reserved prefix
	Now               func() time.Time
	Logger            *logrus.Entry
}

// Store is the cache.Store implementation with a fast backend and a file fallback.
// It never returns storage errors to callers: they are logged and reported as misses.
type Store struct {
	fast    Backend
	file    *FileBackend
	maxFast int
	now     func() time.Time
	logger  *logrus.Entry

	mu      sync.Mutex
	written map[string]struct{}
	known   []string
}

var _ cache.Store = (*Store)(nil)

// New creates a Store. File is required.
func New(opts Options) (*Store, error) {
	if opts.File == nil {
		return nil, errors.New("cachestore: file backend is required")
	}
	if opts.MaxFastValueBytes <= 0 {
		opts.MaxFastValueBytes = DefaultMaxFastValueBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		fast:    opts.Fast,
		file:    opts.File,
		maxFast: opts.MaxFastValueBytes,
		now:     opts.Now,
		logger:  opts.Logger.WithField("component", "cachestore"),
		written: make(map[string]struct{}),
		known:   append([]string(nil), opts.KnownKeys...),
	}, nil
}

// Write JSON-encodes value and stores it under key.
func (s *Store) Write(ctx context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to encode cache value")
		return false
	}
	return s.WriteRaw(ctx, key, data)
}

// WriteRaw stores already-encoded bytes under key.
// Values over the fast ceiling, or rejected by the fast backend, go to the file backend.
func (s *Store) WriteRaw(ctx context.Context, key string, data []byte) bool {
	logCtx := s.logger.WithField("key", key)
	if strings.TrimSpace(key) == "" {
		logCtx.Warn("Refusing to cache value under empty key")
		return false
	}

	stored := ""
	if s.fast != nil && len(data) <= s.maxFast {
		if err := s.fast.Put(ctx, key, data); err != nil {
			logCtx.WithError(err).Debug("Fast backend write failed, falling back to file backend")
		} else {
			stored = s.fast.Name()
			s.deleteQuietly(ctx, s.file, key)
		}
	}

	if stored == "" {
		if err := s.file.Put(ctx, key, data); err != nil {
			logCtx.WithError(err).Error("File backend write failed, value not cached")
			return false
		}
		stored = s.file.Name()
		if s.fast != nil {
			// an older small copy must not shadow the new value on read
			s.deleteQuietly(ctx, s.fast, key)
		}
	}

	s.touch(ctx, key)
	s.remember(key)
	logCtx.WithFields(logrus.Fields{"backend": stored, "bytes": len(data)}).Debug("Cached value")
	return true
}

// Read decodes the cached value for key into dst. Corrupt values count as a miss.
func (s *Store) Read(ctx context.Context, key string, dst any) bool {
	data, ok := s.ReadRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cached value is corrupt, treating as absent")
		return false
	}
	return true
}

// ReadRaw returns the stored bytes for key from the first backend that has them.
func (s *Store) ReadRaw(ctx context.Context, key string) ([]byte, bool) {
	for _, b := range s.backends() {
		data, err := b.Get(ctx, key)
		if err == nil {
			return data, true
		}
		if !errors.Is(err, ErrNotFound) {
			s.logger.WithError(err).WithFields(logrus.Fields{"key": key, "backend": b.Name()}).Warn("Cache read failed")
		}
	}
	return nil, false
}

// WriteBinary stores data as a raw file, avoiding base64 inflation and the fast ceiling.
func (s *Store) WriteBinary(ctx context.Context, key string, data []byte) bool {
	if err := s.file.PutBlob(ctx, key, data); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to write binary cache file")
		return false
	}
	// drop a legacy base64 copy so the two never disagree
	for _, b := range s.backends() {
		s.deleteQuietly(ctx, b, key)
	}
	s.touch(ctx, key)
	s.remember(key)
	return true
}

// ReadBinary returns the raw payload for key. A base64 string stored by older versions
// under the same key is still accepted.
func (s *Store) ReadBinary(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.file.GetBlob(ctx, key)
	if err == nil {
		return data, true
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.WithError(err).WithField("key", key).Warn("Binary cache read failed")
	}

	var encoded string
	if !s.Read(ctx, key, &encoded) {
		return nil, false
	}
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Legacy base64 cache value is corrupt")
		return nil, false
	}
	return decoded, true
}

// Remove deletes key's value, binary file and timestamp markers from every backend.
func (s *Store) Remove(ctx context.Context, key string) {
	for _, b := range s.backends() {
		for _, k := range withMarkers(key) {
			s.deleteQuietly(ctx, b, k)
		}
	}
	if err := s.file.DeleteBlob(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to remove binary cache file")
	}
	s.mu.Lock()
	delete(s.written, key)
	s.mu.Unlock()
}

// CreatedAt returns when key was first written.
func (s *Store) CreatedAt(ctx context.Context, key string) (time.Time, bool) {
	return s.readMarker(ctx, key+cache.CreatedSuffix)
}

// UpdatedAt returns when key was last written, using the legacy marker if needed.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, bool) {
	if t, ok := s.readMarker(ctx, key+cache.UpdatedSuffix); ok {
		return t, true
	}
	return s.readMarker(ctx, key+cache.TimestampSuffix)
}

// Age is the time since key was last written.
func (s *Store) Age(ctx context.Context, key string) (time.Duration, bool) {
	updated, ok := s.UpdatedAt(ctx, key)
	if !ok {
		return 0, false
	}
	return s.now().Sub(updated), true
}

// IsExpired reports whether key is older than maxAge. Keys without a timestamp are expired.
func (s *Store) IsExpired(ctx context.Context, key string, maxAge time.Duration) bool {
	age, ok := s.Age(ctx, key)
	if !ok {
		return true
	}
	return age > maxAge
}

// ClearAll removes every key written by this store, every configured known key and every
// key carrying the reserved cache prefix. It returns the number of keys removed.
func (s *Store) ClearAll(ctx context.Context) int {
	targets := make(map[string]struct{})

	s.mu.Lock()
	for k := range s.written {
		targets[k] = struct{}{}
	}
	for _, k := range s.known {
		targets[k] = struct{}{}
	}
	s.mu.Unlock()

	listed := make([]string, 0)
	for _, b := range s.backends() {
		keys, err := b.Keys(ctx)
		if err != nil {
			s.logger.WithError(err).WithField("backend", b.Name()).Warn("Failed to list cache keys")
			continue
		}
		listed = append(listed, keys...)
	}
	if blobs, err := s.file.BlobKeys(ctx); err == nil {
		listed = append(listed, blobs...)
	} else {
		s.logger.WithError(err).Warn("Failed to list binary cache files")
	}

	for _, k := range listed {
		base := k
		if owner, ok := cache.IsMetadataKey(k); ok {
			base = owner
		}
		if strings.HasPrefix(base, cache.KeyPrefix) {
			targets[base] = struct{}{}
		}
	}

	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	all := make([]string, 0, len(keys)*4)
	for _, k := range keys {
		all = append(all, withMarkers(k)...)
	}
	for _, b := range s.backends() {
		if batch, ok := b.(BatchDeleter); ok {
			err := batch.DeleteMany(ctx, all)
			if err == nil {
				continue
			}
			s.logger.WithError(err).WithField("backend", b.Name()).Warn("Batch delete failed, removing keys one by one")
		}
		for _, k := range all {
			s.deleteQuietly(ctx, b, k)
		}
	}
	for _, k := range keys {
		if err := s.file.DeleteBlob(ctx, k); err != nil {
			s.logger.WithError(err).WithField("key", k).Warn("Failed to remove binary cache file")
		}
	}

	s.mu.Lock()
	s.written = make(map[string]struct{})
	s.mu.Unlock()

	s.logger.WithField("keys", len(keys)).Info("Cache cleared")
	return len(keys)
}

func (s *Store) backends() []Backend {
	if s.fast == nil {
		return []Backend{s.file}
	}
	return []Backend{s.fast, s.file}
}

// touch records created (first write only), updated and the legacy timestamp marker.
func (s *Store) touch(ctx context.Context, key string) {
	now := s.now().UTC()
	if _, ok := s.readMarker(ctx, key+cache.CreatedSuffix); !ok {
		s.writeMarker(ctx, key+cache.CreatedSuffix, []byte(now.Format(time.RFC3339Nano)))
	}
	s.writeMarker(ctx, key+cache.UpdatedSuffix, []byte(now.Format(time.RFC3339Nano)))
	s.writeMarker(ctx, key+cache.TimestampSuffix, []byte(strconv.FormatInt(now.UnixMilli(), 10)))
}

// writeMarker follows WriteRaw: the copy in the other backend is dropped so reads never see
// an older timestamp.
func (s *Store) writeMarker(ctx context.Context, key string, value []byte) {
	if s.fast != nil {
		if err := s.fast.Put(ctx, key, value); err == nil {
			s.deleteQuietly(ctx, s.file, key)
			return
		}
	}
	if err := s.file.Put(ctx, key, value); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to write cache timestamp")
		return
	}
	if s.fast != nil {
		s.deleteQuietly(ctx, s.fast, key)
	}
}

func (s *Store) readMarker(ctx context.Context, key string) (time.Time, bool) {
	raw, ok := s.ReadRaw(ctx, key)
	if !ok {
		return time.Time{}, false
	}
	t, err := parseMarker(string(raw))
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Unreadable cache timestamp")
		return time.Time{}, false
	}
	return t, true
}

// parseMarker accepts RFC3339 text or unix milliseconds.
func parseMarker(raw string) (time.Time, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func (s *Store) deleteQuietly(ctx context.Context, b Backend, key string) {
	if err := b.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"key": key, "backend": b.Name()}).Debug("Cache delete failed")
	}
}

func (s *Store) remember(key string) {
	s.mu.Lock()
	s.written[key] = struct{}{}
	s.mu.Unlock()
}

func withMarkers(key string) []string {
	return []string{key, key + cache.CreatedSuffix, key + cache.UpdatedSuffix, key + cache.TimestampSuffix}
}
