package cache

import "strings"

// KeyPrefix marks keys that belong to the cache and may be wiped by a full reset.
const KeyPrefix = "cache_"

// Metadata marker suffixes stored next to every value.
const (
	CreatedSuffix   = "_created"
	UpdatedSuffix   = "_updated"
	TimestampSuffix = "_timestamp" // legacy, read only when _updated is absent
)

const (
	KeyConfig        = KeyPrefix + "config"
	KeyEvents        = KeyPrefix + "events"
	KeyTeams         = KeyPrefix + "teams"
	KeyMetrics       = KeyPrefix + "metrics"
	KeyProfileImage  = KeyPrefix + "profile_image"
	KeyPendingQueue  = "pending_scouting_entries"
	KeyTombstones    = "deleted_scouting_ids"
	KeyTrackingState = "notification_tracking_state"
)

// MatchesKey is the cache key of the match schedule for one event.
func MatchesKey(eventCode string) string {
	return KeyPrefix + "matches_" + strings.ToLower(eventCode)
}

// ScoutingKey is the cache key of the scouting records for one event.
func ScoutingKey(eventCode string) string {
	return KeyPrefix + "scouting_" + strings.ToLower(eventCode)
}

// KnownKeys lists keys outside KeyPrefix that a full reset must still remove.
func KnownKeys() []string {
	return []string{KeyPendingQueue, KeyTombstones, KeyTrackingState}
}

// IsMetadataKey reports whether key is a timestamp marker and returns the key it describes.
func IsMetadataKey(key string) (string, bool) {
	for _, suffix := range []string{CreatedSuffix, UpdatedSuffix, TimestampSuffix} {
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			return strings.TrimSuffix(key, suffix), true
		}
	}
	return "", false
}
