package main

import "time"

const dateLayout = "2006-01-02"

// startOfDay truncates t to local midnight in loc. time.Truncate would cut at
// UTC midnight, which is the wrong day boundary outside UTC.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// sameDay reports calendar-day equality in loc, ignoring time of day.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// dayKey is the map key for a calendar day.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

// parseDay parses YYYY-MM-DD as midnight in loc.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, loc)
}

// weekStart returns the Monday of the week containing t, at midnight.
// Uses AddDate so month/year boundaries are handled by the calendar.
func weekStart(t time.Time, loc *time.Location) time.Time {
	d := startOfDay(t, loc)
	weekday := int(d.Weekday()) // 0=Sun
	if weekday == 0 {
		weekday = 7 // Mon=1..Sun=7
	}
	return d.AddDate(0, 0, -(weekday - 1))
}

// clock abstracts "now" so day rollover can be tested.
type clock func() time.Time
