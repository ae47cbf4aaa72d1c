// Package wire decodes loosely-typed JSON objects from the backend service.
//
// Field names are matched ignoring case, underscores and dashes, so "scheduled_for",
// "scheduledFor" and "ScheduledFor" are the same field. Scalars are accepted in either
// their native JSON type or as strings.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fields is a decoded JSON object keyed by normalized field name.
type Fields map[string]json.RawMessage

// Parse decodes a JSON object. A JSON null decodes to an empty Fields.
func Parse(data []byte) (Fields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	f := make(Fields, len(raw))
	for k, v := range raw {
		f[normalize(k)] = v
	}
	return f, nil
}

func normalize(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("_", "", "-", "").Replace(name)
}

// Raw returns the first present, non-null field among names.
func (f Fields) Raw(names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		v, ok := f[normalize(n)]
		if ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

// String returns a string field; numbers and booleans are rendered as text.
func (f Fields) String(names ...string) string {
	v, ok := f.Raw(names...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	trimmed := string(bytes.TrimSpace(v))
	if trimmed == "" || trimmed[0] == '{' || trimmed[0] == '[' {
		return ""
	}
	return trimmed
}

// Int64 returns an integer field given as number or numeric string, 0 when absent or invalid.
func (f Fields) Int64(names ...string) int64 {
	v, ok := f.Raw(names...)
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if fl, err := n.Float64(); err == nil {
			return int64(fl)
		}
	}
	if i, err := strconv.ParseInt(strings.TrimSpace(f.String(names...)), 10, 64); err == nil {
		return i
	}
	return 0
}

// Bool accepts true/false, "true"/"false", and 0/1.
func (f Fields) Bool(names ...string) bool {
	v, ok := f.Raw(names...)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	switch strings.ToLower(f.String(names...)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// Time returns a timestamp field; see ParseTime for accepted formats.
func (f Fields) Time(names ...string) time.Time {
	v, ok := f.Raw(names...)
	if !ok {
		return time.Time{}
	}
	if n := f.Int64(names...); n != 0 && !bytes.ContainsAny(v, "-:T") {
		return fromEpoch(n)
	}
	t, _ := ParseTime(f.String(names...))
	return t
}

// Object returns a nested object field.
func (f Fields) Object(names ...string) Fields {
	v, ok := f.Raw(names...)
	if !ok {
		return Fields{}
	}
	nested, err := Parse(v)
	if err != nil {
		return Fields{}
	}
	return nested
}

// Decode unmarshals a field into dst and reports whether it was present and valid.
func (f Fields) Decode(dst any, names ...string) bool {
	v, ok := f.Raw(names...)
	if !ok {
		return false
	}
	return json.Unmarshal(v, dst) == nil
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses RFC3339 text, zone-less timestamps (taken as UTC) and epoch numbers.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpoch(n), nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// fromEpoch treats values past the year 2286 in seconds as milliseconds.
func fromEpoch(n int64) time.Time {
	if n > 9_999_999_999 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}

// List returns the elements of an array field. Non-array values yield nil.
func (f Fields) List(names ...string) []json.RawMessage {
	v, ok := f.Raw(names...)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	return items
}
