// internal/app/pending_queue.go
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"offline_sync_agent/internal/domain/cache"
	"offline_sync_agent/internal/domain/scouting"

	"github.com/sirupsen/logrus"
)

// SubmitFunc sends one submission to the backend and returns the id it was stored under.
type SubmitFunc func(ctx context.Context, s scouting.Submission) (int64, error)

// DrainReport summarizes one Drain run.
type DrainReport struct {
	Submitted int
	Failed    int
	Remaining int
}

// PendingQueue buffers submissions created offline until the backend accepts them.
// Every mutation is persisted through the cache; state is loaded on first use.
type PendingQueue struct {
	store  cache.Store
	logger *logrus.Entry

	mu         sync.Mutex
	loaded     bool
	entries    []scouting.Submission
	tombstones *scouting.Tombstones
}

func NewPendingQueue(store cache.Store, logger *logrus.Entry) *PendingQueue {
	return &PendingQueue{
		store:      store,
		logger:     logger.WithField("component", "pending_queue"),
		tombstones: scouting.NewTombstones(),
	}
}

func (q *PendingQueue) loadLocked(ctx context.Context) {
	if q.loaded {
		return
	}
	q.loaded = true

	ts := scouting.NewTombstones()
	if q.store.Read(ctx, cache.KeyTombstones, ts) {
		q.tombstones = ts
	}

	var entries []scouting.Submission
	if q.store.Read(ctx, cache.KeyPendingQueue, &entries) {
		q.entries = q.tombstones.Filter(entries)
		if dropped := len(entries) - len(q.entries); dropped > 0 {
			q.logger.WithField("dropped", dropped).Info("Dropped deleted submissions from pending queue")
		}
	}
	q.logger.WithFields(logrus.Fields{
		"entries":    len(q.entries),
		"tombstones": q.tombstones.Len(),
	}).Debug("Pending queue loaded")
}

func (q *PendingQueue) persistLocked(ctx context.Context) {
	entries := q.entries
	if entries == nil {
		entries = []scouting.Submission{}
	}
	if !q.store.Write(ctx, cache.KeyPendingQueue, entries) {
		q.logger.Warn("Failed to persist pending queue")
	}
}

func (q *PendingQueue) persistTombstonesLocked(ctx context.Context) {
	if !q.store.Write(ctx, cache.KeyTombstones, q.tombstones) {
		q.logger.Warn("Failed to persist deletion tombstones")
	}
}

// Add queues s, replacing any entry with the same identity. Deleted submissions are ignored.
func (q *PendingQueue) Add(ctx context.Context, s scouting.Submission) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked(ctx)

	if q.tombstones.Covers(s) {
		q.logger.WithField("identity", s.IdentityKey()).Info("Ignoring submission that was deleted locally")
		return
	}
	replaced := q.removeLocked(func(e scouting.Submission) bool { return scouting.SameIdentity(e, s) })
	q.entries = append(q.entries, s)
	q.persistLocked(ctx)

	q.logger.WithFields(logrus.Fields{
		"identity": s.IdentityKey(),
		"replaced": replaced,
		"queued":   len(q.entries),
	}).Debug("Queued submission")
}

// Remove drops every entry matching pred and returns how many were removed.
func (q *PendingQueue) Remove(ctx context.Context, pred func(scouting.Submission) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked(ctx)

	n := q.removeLocked(pred)
	if n > 0 {
		q.persistLocked(ctx)
	}
	return n
}

func (q *PendingQueue) removeLocked(pred func(scouting.Submission) bool) int {
	kept := make([]scouting.Submission, 0, len(q.entries))
	for _, e := range q.entries {
		if pred(e) {
			continue
		}
		kept = append(kept, e)
	}
	n := len(q.entries) - len(kept)
	q.entries = kept
	return n
}

// List returns the queued entries in insertion order, without deleted ones.
func (q *PendingQueue) List(ctx context.Context) []scouting.Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked(ctx)
	return q.tombstones.Filter(q.entries)
}

// Delete handles a user deletion: the entry leaves the queue and the cached scouting data
// of its event, and its ids are tombstoned so later refreshes never bring it back.
func (q *PendingQueue) Delete(ctx context.Context, s scouting.Submission) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked(ctx)

	removed := q.removeLocked(func(e scouting.Submission) bool { return scouting.SameIdentity(e, s) })
	q.tombstones.Add(s)
	q.persistLocked(ctx)
	q.persistTombstonesLocked(ctx)

	snapshot := 0
	if s.EventCode != "" {
		snapshot = q.pruneSnapshotLocked(ctx, cache.ScoutingKey(s.EventCode))
	}
	q.logger.WithFields(logrus.Fields{
		"identity":      s.IdentityKey(),
		"from_queue":    removed,
		"from_snapshot": snapshot,
	}).Info("Deleted submission")
}

// pruneSnapshotLocked drops tombstoned records from a cached scouting list, leaving the
// other records byte for byte.
func (q *PendingQueue) pruneSnapshotLocked(ctx context.Context, key string) int {
	var records []json.RawMessage
	if !q.store.Read(ctx, key, &records) {
		return 0
	}
	kept := q.tombstones.FilterRaw(records)
	n := len(records) - len(kept)
	if n > 0 && !q.store.Write(ctx, key, kept) {
		q.logger.WithField("key", key).Warn("Failed to rewrite cached scouting data after delete")
	}
	return n
}

// IsDeleted reports whether s was deleted locally.
func (q *PendingQueue) IsDeleted(ctx context.Context, s scouting.Submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked(ctx)
	return q.tombstones.Covers(s)
}

// FilterDeleted returns list without the submissions deleted locally.
func (q *PendingQueue) FilterDeleted(ctx context.Context, list []scouting.Submission) []scouting.Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked(ctx)
	return q.tombstones.Filter(list)
}

// FilterDeletedRaw is FilterDeleted for records kept as raw JSON.
func (q *PendingQueue) FilterDeletedRaw(ctx context.Context, items []json.RawMessage) []json.RawMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked(ctx)
	return q.tombstones.FilterRaw(items)
}

// MarkSynced removes the entry the backend accepted. Entries without an offline id are
// matched by serverID.
func (q *PendingQueue) MarkSynced(ctx context.Context, offlineID string, serverID int64) bool {
	return q.Remove(ctx, func(e scouting.Submission) bool {
		if offlineID != "" {
			return e.OfflineID == offlineID
		}
		return serverID > 0 && e.ID == serverID
	}) > 0
}

// Drain submits the queued entries in order. Accepted entries are removed; failed ones
// stay queued for the next run. Drain stops early when ctx is done.
func (q *PendingQueue) Drain(ctx context.Context, submit SubmitFunc) DrainReport {
	var report DrainReport
	for _, e := range q.List(ctx) {
		if ctx.Err() != nil {
			break
		}
		logCtx := q.logger.WithField("identity", e.IdentityKey())
		serverID, err := submit(ctx, e)
		if err != nil {
			logCtx.WithError(err).Warn("Failed to submit queued entry, will retry")
			report.Failed++
			continue
		}
		removed := q.Remove(ctx, func(c scouting.Submission) bool { return sameVersion(c, e) })
		if removed == 0 {
			// deleted or replaced while in flight
			logCtx.Debug("Submitted entry no longer queued")
		}
		logCtx.WithField("server_id", serverID).Info("Queued entry synced")
		report.Submitted++
	}
	report.Remaining = len(q.List(ctx))
	return report
}

func sameVersion(a, b scouting.Submission) bool {
	return scouting.SameIdentity(a, b) && a.Timestamp.Equal(b.Timestamp) && bytes.Equal(a.Data, b.Data)
}

// FormatQueue renders the pending queue as a short text listing.
func FormatQueue(entries []scouting.Submission) string {
	if len(entries) == 0 {
		return "No submissions waiting to be synced."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d submission(s) waiting to be synced:\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&sb, "- team %d, match %d", e.TeamNumber, e.MatchID)
		if e.EventCode != "" {
			fmt.Fprintf(&sb, " (%s)", e.EventCode)
		}
		if !e.Timestamp.IsZero() {
			fmt.Fprintf(&sb, ", %s", e.Timestamp.Local().Format("Jan 2 15:04"))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
