// Package timeline applies time-based decay to memory importance and
// provides time-window filtering, timeline assembly and temporal pattern
// analysis over quintuple sets.
package timeline

import (
	"math"
	"sort"
	"time"

	"github.com/summergraph/grag/pkg/types"
)

const (
	// halfLife is the exponential decay half-life: 30 days in seconds.
	halfLife = 30 * 24 * 3600.0

	// decayFloor is the minimum decay factor; memories never fully vanish.
	decayFloor = 0.1
)

// Manager computes decay and time-window views over quintuples.
type Manager struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a time axis manager using the wall clock.
func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// NewManagerWithClock creates a manager with an injected clock.
func NewManagerWithClock(now func() time.Time) *Manager {
	return &Manager{now: now}
}

// DecayFactor returns exp(-age/halfLife) for the given creation instant,
// floored at 0.1. A zero instant counts as "now" (no decay).
func (m *Manager) DecayFactor(t time.Time) float64 {
	if t.IsZero() {
		return 1.0
	}
	age := m.now().Sub(t).Seconds()
	if age < 0 {
		age = 0
	}
	factor := math.Exp(-age / halfLife)
	return math.Max(decayFloor, factor)
}

// QuintupleDecayFactor extracts the quintuple's timestamp (raw epoch
// preferred, formatted string otherwise) and returns its decay factor.
func (m *Manager) QuintupleDecayFactor(q *types.Quintuple) float64 {
	return m.DecayFactor(q.Time())
}

// ApplyDecay returns the transient decayed importance:
// importance_score * decay_factor. The stored score is never mutated.
func (m *Manager) ApplyDecay(q *types.Quintuple) float64 {
	return q.ImportanceScore * m.QuintupleDecayFactor(q)
}

// WindowFilter holds the three combinable time predicates. Nil fields are
// not applied.
type WindowFilter struct {
	// Window keeps quintuples created within the duration before now.
	Window *time.Duration
	// Start keeps quintuples created at or after this instant.
	Start *time.Time
	// End keeps quintuples created at or before this instant.
	End *time.Time
}

// FilterByWindow returns the quintuples passing every set predicate.
// Quintuples with unparseable timestamps are treated as created now,
// matching how the stored corpus has always been read.
func (m *Manager) FilterByWindow(quintuples []*types.Quintuple, filter WindowFilter) []*types.Quintuple {
	now := m.now()
	var out []*types.Quintuple
	for _, q := range quintuples {
		t := q.Time()
		if t.IsZero() {
			t = now
		}
		if filter.Window != nil && now.Sub(t) > *filter.Window {
			continue
		}
		if filter.Start != nil && t.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && t.After(*filter.End) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Recent returns quintuples created in the last N hours.
func (m *Manager) Recent(quintuples []*types.Quintuple, hours int) []*types.Quintuple {
	window := time.Duration(hours) * time.Hour
	return m.FilterByWindow(quintuples, WindowFilter{Window: &window})
}

// SortByTime sorts quintuples by creation time, newest first unless
// ascending is set. The input slice is not mutated.
func (m *Manager) SortByTime(quintuples []*types.Quintuple, ascending bool) []*types.Quintuple {
	out := make([]*types.Quintuple, len(quintuples))
	copy(out, quintuples)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].Time().Before(out[j].Time())
		}
		return out[i].Time().After(out[j].Time())
	})
	return out
}

// TimelineEntry is a quintuple annotated with its decayed importance and
// age for timeline presentation.
type TimelineEntry struct {
	Quintuple         *types.Quintuple `json:"quintuple"`
	DecayedImportance float64          `json:"decayed_importance"`
	AgeHours          float64          `json:"age_hours"`
}

// Timeline filters by the optional window, annotates each entry with
// decayed importance and age, and sorts newest first.
func (m *Manager) Timeline(quintuples []*types.Quintuple, window *time.Duration) []TimelineEntry {
	filtered := m.FilterByWindow(quintuples, WindowFilter{Window: window})
	sorted := m.SortByTime(filtered, false)

	now := m.now()
	entries := make([]TimelineEntry, 0, len(sorted))
	for _, q := range sorted {
		t := q.Time()
		if t.IsZero() {
			t = now
		}
		entries = append(entries, TimelineEntry{
			Quintuple:         q,
			DecayedImportance: m.ApplyDecay(q),
			AgeHours:          now.Sub(t).Hours(),
		})
	}
	return entries
}

// TemporalPatterns summarizes the age distribution of a quintuple set.
type TemporalPatterns struct {
	TotalQuintuples int     `json:"total_quintuples"`
	TimeSpanHours   float64 `json:"time_span_hours"`
	OldestTimestamp float64 `json:"oldest_timestamp"`
	NewestTimestamp float64 `json:"newest_timestamp"`
	AverageAgeHours float64 `json:"average_age_hours"`

	// Age histogram, one bucket per entry.
	LastHour  int `json:"last_hour"`
	LastDay   int `json:"last_day"`
	LastWeek  int `json:"last_week"`
	LastMonth int `json:"last_month"`
	Older     int `json:"older"`
}

// AnalyzeTemporalPatterns computes min/max/span and the five-bucket age
// histogram over a set.
func (m *Manager) AnalyzeTemporalPatterns(quintuples []*types.Quintuple) TemporalPatterns {
	if len(quintuples) == 0 {
		return TemporalPatterns{}
	}

	now := m.now()
	patterns := TemporalPatterns{TotalQuintuples: len(quintuples)}

	var oldest, newest time.Time
	var totalAge time.Duration
	for i, q := range quintuples {
		t := q.Time()
		if t.IsZero() {
			t = now
		}
		if i == 0 || t.Before(oldest) {
			oldest = t
		}
		if i == 0 || t.After(newest) {
			newest = t
		}

		age := now.Sub(t)
		totalAge += age
		switch {
		case age <= time.Hour:
			patterns.LastHour++
		case age <= 24*time.Hour:
			patterns.LastDay++
		case age <= 7*24*time.Hour:
			patterns.LastWeek++
		case age <= 30*24*time.Hour:
			patterns.LastMonth++
		default:
			patterns.Older++
		}
	}

	patterns.TimeSpanHours = newest.Sub(oldest).Hours()
	patterns.OldestTimestamp = float64(oldest.UnixNano()) / 1e9
	patterns.NewestTimestamp = float64(newest.UnixNano()) / 1e9
	patterns.AverageAgeHours = totalAge.Hours() / float64(len(quintuples))
	return patterns
}

// SessionQuintuples returns quintuples carrying the given session id,
// including ids absorbed by dedup merges.
func (m *Manager) SessionQuintuples(quintuples []*types.Quintuple, sessionID string) []*types.Quintuple {
	var out []*types.Quintuple
	for _, q := range quintuples {
		for _, id := range q.AllSessionIDs() {
			if id == sessionID {
				out = append(out, q)
				break
			}
		}
	}
	return out
}

// MergeSessions concatenates the quintuples of several sessions in the
// order the session ids are given.
func (m *Manager) MergeSessions(quintuples []*types.Quintuple, sessionIDs []string) []*types.Quintuple {
	var out []*types.Quintuple
	for _, id := range sessionIDs {
		out = append(out, m.SessionQuintuples(quintuples, id)...)
	}
	return out
}
