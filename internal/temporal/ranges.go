package temporal

import "time"

// Range is a half-open UTC window [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the window.
func (r Range) Contains(ts time.Time) bool {
	return !ts.Before(r.Start) && ts.Before(r.End)
}

// RangeForType resolves a named window relative to ref, in UTC. Supported
// types are "today", "this_week" (ISO week, Monday start), "this_month"
// and "this_year"; anything else falls back to "today".
func RangeForType(rangeType string, ref time.Time) Range {
	ref = ref.UTC()
	switch rangeType {
	case "this_week":
		// ISO weekday: Monday=0 ... Sunday=6.
		offset := (int(ref.Weekday()) + 6) % 7
		start := midnight(ref).AddDate(0, 0, -offset)
		return Range{Start: start, End: start.AddDate(0, 0, 7)}
	case "this_month":
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Range{Start: start, End: start.AddDate(0, 1, 0)}
	case "this_year":
		start := time.Date(ref.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return Range{Start: start, End: start.AddDate(1, 0, 0)}
	default:
		start := midnight(ref)
		return Range{Start: start, End: start.AddDate(0, 0, 1)}
	}
}

// NextDays is the window from ref until n days later.
func NextDays(ref time.Time, n int) Range {
	ref = ref.UTC()
	return Range{Start: ref, End: ref.AddDate(0, 0, n)}
}

// NextHours is the window from ref until n hours later.
func NextHours(ref time.Time, n int) Range {
	ref = ref.UTC()
	return Range{Start: ref, End: ref.Add(time.Duration(n) * time.Hour)}
}

// IsUpcoming reports whether ts is strictly after now.
func IsUpcoming(ts, now time.Time) bool { return ts.After(now) }

// IsPast reports whether ts is strictly before now.
func IsPast(ts, now time.Time) bool { return ts.Before(now) }

// IsToday reports whether ts falls on now's UTC calendar day.
func IsToday(ts, now time.Time) bool { return sameDay(ts.UTC(), now.UTC()) }

func midnight(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
