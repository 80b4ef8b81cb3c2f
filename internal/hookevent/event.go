// Package hookevent decodes hook event records posted by Claude Code hooks.
//
// Records travel through the reporters as open JSON objects so that unknown
// fields survive. Decode turns a record into a typed variant chosen by the
// explicit event-name discriminator; records without a recognized name become
// Unknown rather than being guessed from their fields.
package hookevent

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// Record is one raw hook event.
type Record map[string]any

// Field names shared by every hook payload.
const (
	FieldEventName      = "hook_event_name"
	FieldLegacyType     = "hook_type"
	FieldTimestamp      = "timestamp"
	FieldSessionID      = "session_id"
	FieldTranscriptPath = "transcript_path"
	FieldCWD            = "cwd"
	FieldPermissionMode = "permission_mode"
)

// ErrNotObject is returned by ParseRecord for JSON that is not an object.
var ErrNotObject = errors.New("event payload must be a JSON object")

// ParseRecord decodes a JSON object.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if rec == nil {
		return nil, ErrNotObject
	}
	return rec, nil
}

// Name returns the event discriminator, preferring hook_event_name over the
// legacy hook_type key.
func Name(rec Record) string {
	if s, ok := rec[FieldEventName].(string); ok && s != "" {
		return s
	}
	if s, ok := rec[FieldLegacyType].(string); ok {
		return s
	}
	return ""
}

// EnsureTimestamp sets the timestamp field to now (Unix seconds) when absent.
func EnsureTimestamp(rec Record, now time.Time) {
	if _, ok := rec[FieldTimestamp]; ok {
		return
	}
	rec[FieldTimestamp] = float64(now.UnixNano()) / float64(time.Second)
}

// Timestamp returns the record timestamp, or the zero time.
func Timestamp(rec Record) time.Time {
	switch v := rec[FieldTimestamp].(type) {
	case float64:
		sec := int64(v)
		return time.Unix(sec, int64((v-float64(sec))*float64(time.Second)))
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return Timestamp(Record{FieldTimestamp: f})
		}
	}
	return time.Time{}
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the record's keys, sorted.
func (r Record) Fields() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Record) str(key string) string {
	s, _ := r[key].(string)
	return s
}

func (r Record) boolean(key string) bool {
	b, _ := r[key].(bool)
	return b
}
