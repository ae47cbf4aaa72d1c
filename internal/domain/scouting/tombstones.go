// internal/domain/scouting/tombstones.go
package scouting

import (
	"encoding/json"
	"sort"
)

// Tombstones records submissions the user deleted locally. Entries never expire.
type Tombstones struct {
	OfflineIDs map[string]struct{}
	IDs        map[int64]struct{}
}

func NewTombstones() *Tombstones {
	return &Tombstones{OfflineIDs: make(map[string]struct{}), IDs: make(map[int64]struct{})}
}

// Add marks every identity s is known by.
func (t *Tombstones) Add(s Submission) {
	if s.OfflineID != "" {
		t.OfflineIDs[s.OfflineID] = struct{}{}
	}
	if s.ID > 0 {
		t.IDs[s.ID] = struct{}{}
	}
}

// Covers reports whether s matches a tombstone by offline id or server id.
func (t *Tombstones) Covers(s Submission) bool {
	if s.OfflineID != "" {
		if _, ok := t.OfflineIDs[s.OfflineID]; ok {
			return true
		}
	}
	if s.ID > 0 {
		if _, ok := t.IDs[s.ID]; ok {
			return true
		}
	}
	return false
}

// Filter returns the submissions not covered by a tombstone.
func (t *Tombstones) Filter(list []Submission) []Submission {
	out := make([]Submission, 0, len(list))
	for _, s := range list {
		if t.Covers(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// FilterRaw drops the raw records whose decoded identity is covered by a tombstone.
// Records that do not decode are kept untouched.
func (t *Tombstones) FilterRaw(items []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var s Submission
		if err := json.Unmarshal(item, &s); err == nil && t.Covers(s) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (t *Tombstones) Len() int {
	return len(t.OfflineIDs) + len(t.IDs)
}

type tombstonesJSON struct {
	OfflineIDs []string `json:"offlineIds"`
	IDs        []int64  `json:"ids"`
}

func (t *Tombstones) MarshalJSON() ([]byte, error) {
	out := tombstonesJSON{OfflineIDs: make([]string, 0, len(t.OfflineIDs)), IDs: make([]int64, 0, len(t.IDs))}
	for id := range t.OfflineIDs {
		out.OfflineIDs = append(out.OfflineIDs, id)
	}
	for id := range t.IDs {
		out.IDs = append(out.IDs, id)
	}
	sort.Strings(out.OfflineIDs)
	sort.Slice(out.IDs, func(i, j int) bool { return out.IDs[i] < out.IDs[j] })
	return json.Marshal(out)
}

func (t *Tombstones) UnmarshalJSON(data []byte) error {
	var in tombstonesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = *NewTombstones()
	for _, id := range in.OfflineIDs {
		t.OfflineIDs[id] = struct{}{}
	}
	for _, id := range in.IDs {
		t.IDs[id] = struct{}{}
	}
	return nil
}
