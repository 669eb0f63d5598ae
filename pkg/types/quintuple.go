package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the human-readable timestamp format persisted alongside
// the raw epoch value. Both representations are kept so that files written by
// older tooling remain loadable and files we write remain readable by it.
const TimestampLayout = "2006-01-02 15:04:05"

// Quintuple is the atomic unit of long-term memory: a 5-ary fact
// (subject, subject_type, predicate, object, object_type) plus metadata.
//
// Two quintuples with the identical 5-field key are the same fact and must
// be merged on write, never stored twice.
type Quintuple struct {
	Subject     string `json:"subject"`
	SubjectType string `json:"subject_type"`
	Predicate   string `json:"predicate"`
	Object      string `json:"object"`
	ObjectType  string `json:"object_type"`

	// Timestamp is the human-readable creation time; RawTimestamp is the
	// same instant as epoch seconds. RawTimestamp is authoritative when both
	// are present.
	Timestamp    string  `json:"timestamp"`
	RawTimestamp float64 `json:"raw_timestamp,omitempty"`

	// SessionID groups quintuples extracted from one conversational
	// exchange. Many quintuples share a session id.
	SessionID string `json:"session_id"`

	// SessionIDs is populated by deduplication when records from several
	// sessions merge into one.
	SessionIDs []string `json:"session_ids,omitempty"`

	MemoryType      MemoryType `json:"memory_type"`
	ImportanceScore float64    `json:"importance_score"`

	// MergedFrom counts how many records a dedup merge collapsed into this
	// one. Zero for never-merged records.
	MergedFrom int `json:"merged_from,omitempty"`

	// AnalysisResult carries the multi-factor importance breakdown when
	// advanced analysis ran. Diagnostic only, never required for storage.
	AnalysisResult *AnalysisResult `json:"analysis_result,omitempty"`
}

// AnalysisResult is the multi-factor importance breakdown produced by
// advanced (LLM-based) analysis.
type AnalysisResult struct {
	Factual    float64 `json:"factual"`
	Emotional  float64 `json:"emotional"`
	Contextual float64 `json:"contextual"`
	Frequency  float64 `json:"frequency"`
	Uniqueness float64 `json:"uniqueness"`
}

// DedupKey identifies a quintuple for exact-duplicate detection.
type DedupKey struct {
	Subject     string
	SubjectType string
	Predicate   string
	Object      string
	ObjectType  string
}

// Key returns the full 5-field deduplication key.
func (q *Quintuple) Key() DedupKey {
	return DedupKey{
		Subject:     q.Subject,
		SubjectType: q.SubjectType,
		Predicate:   q.Predicate,
		Object:      q.Object,
		ObjectType:  q.ObjectType,
	}
}

// IndexKey is the storage index key: subject|predicate|object. Typed storage
// uses it to decide between in-place update and append.
func (q *Quintuple) IndexKey() string {
	return q.Subject + "|" + q.Predicate + "|" + q.Object
}

// Time returns the creation instant, preferring the raw epoch value and
// falling back to parsing the formatted string. The zero time is returned
// when neither field is usable.
func (q *Quintuple) Time() time.Time {
	if q.RawTimestamp > 0 {
		sec := int64(q.RawTimestamp)
		nsec := int64((q.RawTimestamp - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
	if q.Timestamp != "" {
		if t, err := time.ParseInLocation(TimestampLayout, q.Timestamp, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SetTime stamps both timestamp representations from one instant.
func (q *Quintuple) SetTime(t time.Time) {
	q.Timestamp = t.Format(TimestampLayout)
	q.RawTimestamp = float64(t.UnixNano()) / 1e9
}

// AllSessionIDs returns the merged session-id set, always including the
// primary SessionID.
func (q *Quintuple) AllSessionIDs() []string {
	seen := make(map[string]bool, len(q.SessionIDs)+1)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(q.SessionID)
	for _, id := range q.SessionIDs {
		add(id)
	}
	return out
}

// Validate reports whether the quintuple satisfies the storage invariants.
func (q *Quintuple) Validate() error {
	if strings.TrimSpace(q.Subject) == "" {
		return fmt.Errorf("quintuple subject is empty")
	}
	if strings.TrimSpace(q.Object) == "" {
		return fmt.Errorf("quintuple object is empty")
	}
	if q.ImportanceScore < 0 || q.ImportanceScore > 1 {
		return fmt.Errorf("importance_score %v outside [0,1]", q.ImportanceScore)
	}
	if !q.MemoryType.IsValid() {
		return fmt.Errorf("unknown memory_type %q", q.MemoryType)
	}
	return nil
}

// UnmarshalJSON accepts both the current object format and the legacy
// 5-element string-array format. Legacy entries are upgraded in place with
// synthesized timestamp, session id, memory type and importance defaults.
func (q *Quintuple) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var fields []string
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("legacy quintuple: %w", err)
		}
		if len(fields) != 5 {
			return fmt.Errorf("legacy quintuple has %d fields, want 5", len(fields))
		}
		upgraded := NewLegacyQuintuple(fields[0], fields[1], fields[2], fields[3], fields[4])
		*q = *upgraded
		return nil
	}

	type alias Quintuple
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*q = Quintuple(a)
	if q.MemoryType == "" {
		q.MemoryType = MemoryTypeFact
	}
	if q.ImportanceScore == 0 {
		q.ImportanceScore = 0.5
	}
	return nil
}

// NewLegacyQuintuple upgrades a bare 5-field fact into the current format
// with synthesized defaults.
func NewLegacyQuintuple(subject, subjectType, predicate, object, objectType string) *Quintuple {
	q := &Quintuple{
		Subject:         subject,
		SubjectType:     subjectType,
		Predicate:       predicate,
		Object:          object,
		ObjectType:      objectType,
		SessionID:       newSessionID(),
		MemoryType:      MemoryTypeFact,
		ImportanceScore: 0.5,
	}
	q.SetTime(time.Now())
	return q
}
