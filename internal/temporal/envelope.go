// Package temporal makes time facts searchable in a store that has no
// native date types, and schedules reminders as linked event contexts.
//
// Every time-bearing payload carries a temporal envelope under
// metadata.temporal: a semantic type tag plus broken-out date parts. The
// store's search only generates candidates from those tags; every
// inequality (upcoming, past, due) is re-checked locally against the
// envelope timestamp.
package temporal

import (
	"strings"
	"time"
)

// Semantic temporal types attached to payload envelopes.
const (
	TypeUpcoming = "upcoming"
	TypePast     = "past"
	TypeToday    = "today"
	TypeDue      = "due"
)

// Enrich returns a copy of payload with a temporal envelope under
// metadata.temporal. ts is the time fact being described, now anchors the
// is_today flag. Existing metadata keys are preserved.
func Enrich(payload map[string]any, temporalType string, ts, now time.Time) map[string]any {
	ts = ts.UTC()

	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}

	meta := make(map[string]any)
	if prev, ok := out["metadata"].(map[string]any); ok {
		for k, v := range prev {
			meta[k] = v
		}
	}
	meta["temporal"] = map[string]any{
		"type":      temporalType,
		"timestamp": ts.Format(time.RFC3339),
		"timezone":  "UTC",
		"year":      ts.Year(),
		"month":     int(ts.Month()),
		"day":       ts.Day(),
		"hour":      ts.Hour(),
		"weekday":   weekdayTag(ts),
		"is_today":  sameDay(ts, now.UTC()),
	}
	out["metadata"] = meta
	return out
}

// EnvelopeTime extracts the envelope timestamp from an event payload.
// Returns the zero time when no envelope is present.
func EnvelopeTime(payload map[string]any) time.Time {
	meta, _ := payload["metadata"].(map[string]any)
	env, _ := meta["temporal"].(map[string]any)
	raw, _ := env["timestamp"].(string)
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func weekdayTag(ts time.Time) string {
	return strings.ToLower(ts.Weekday().String()[:3])
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
