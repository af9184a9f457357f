package units

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day as stored in profile and entry documents
// =============================================================================

// Date is a calendar day kept in its stored textual form. Documents written by
// older clients carry a mix of formats, so the raw value is preserved and parsed
// on demand. An unparseable Date behaves as absent in every calculation.
type Date string

// dateLayouts lists accepted formats, most common first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// NewDate formats t as a YYYY-MM-DD Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"))
}

// DateOf returns the calendar day of t (wall clock).
func DateOf(t time.Time) Date {
	return Date(t.Format("2006-01-02"))
}

// Parse returns the start of the day in UTC, or false if the value is empty or
// matches no known layout.
func (d Date) Parse() (time.Time, bool) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return StartOfDay(t), true
		}
	}
	return time.Time{}, false
}

// IsZero reports whether the date is empty.
func (d Date) IsZero() bool { return strings.TrimSpace(string(d)) == "" }

func (d Date) String() string { return string(d) }

// UnmarshalJSON accepts a string or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Non-string values are kept verbatim so they survive a round trip;
		// they never parse.
		*d = Date(b)
		return nil
	}
	*d = Date(s)
	return nil
}

// =============================================================================
// DAY BOUNDARIES
// =============================================================================
// All boundaries are computed on the wall clock re-expressed in UTC, so a
// caller's local "today" lands on the same calendar day as stored dates.

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// StartOfDay returns 00:00:00.000 of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(day - time.Millisecond)
}

// civil re-expresses t's wall clock in UTC.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Window is an inclusive authorization period at millisecond precision:
// Start is the first instant of the first day, End the last millisecond of the
// last day.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a Window from two stored dates. It returns false when either
// date is unparseable or the range is inverted.
func NewWindow(start, end Date) (Window, bool) {
	s, ok := start.Parse()
	if !ok {
		return Window{}, false
	}
	e, ok := end.Parse()
	if !ok {
		return Window{}, false
	}
	w := Window{Start: s, End: EndOfDay(e)}
	if w.End.Before(w.Start) {
		return Window{}, false
	}
	return w, true
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	t = civil(t)
	return !t.Before(w.Start) && !t.After(w.End)
}

// ContainsDay reports whether the stored date falls within the window.
func (w Window) ContainsDay(d Date) bool {
	t, ok := d.Parse()
	if !ok {
		return false
	}
	return w.Contains(t)
}

func (w Window) String() string {
	return "[" + w.Start.Format("2006-01-02") + ", " + w.End.Format("2006-01-02") + "]"
}
