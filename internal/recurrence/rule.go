package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/jw6ventures/planner/internal/store"
)

// DateLayout is the canonical date form of stored start and end values.
const DateLayout = "2006-01-02"

// DateTimeLayout is the canonical form for values carrying a time of day.
const DateTimeLayout = "2006-01-02 15:04"

// StoredDateLayout reads stored dates with or without zero padding, so
// "2024-3-5" and "2024-03-05" are the same day. New records are always
// written in DateLayout.
const StoredDateLayout = "2006-1-2"

// StoredDateTimeLayout is StoredDateLayout with a time of day.
const StoredDateTimeLayout = "2006-1-2 15:04"

// ParseStartDate returns the date part of a stored start value. Anything
// after the first space is ignored; the prefix must be a year, month and day
// separated by dashes.
func ParseStartDate(start string) (time.Time, error) {
	datePart, _, _ := strings.Cut(start, " ")
	d, err := time.Parse(StoredDateLayout, datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start %q: %w", start, err)
	}
	return d, nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Matches reports whether a recurring event that started on start occurs on
// day. It does not check that day is on or after start.
func Matches(rule store.Recurrence, start, day time.Time) bool {
	switch rule {
	case store.RecurrenceDaily:
		return true
	case store.RecurrenceWorkdays:
		wd := day.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	case store.RecurrenceWeekends:
		wd := day.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case store.RecurrenceMonthly:
		// No clamping: a rule anchored on the 31st skips shorter months.
		return day.Day() == start.Day()
	case store.RecurrenceYearly:
		return day.Month() == start.Month() && day.Day() == start.Day()
	}
	return false
}

// MalformedPolicy decides what callers do with records whose start date does
// not parse. Expansion itself always drops them.
type MalformedPolicy string

const (
	// PolicySkip drops malformed records silently.
	PolicySkip MalformedPolicy = "skip"
	// PolicyWarn drops them and logs each one.
	PolicyWarn MalformedPolicy = "warn"
	// PolicyFail turns their presence into an error for the whole query.
	PolicyFail MalformedPolicy = "fail"
)

// ParsePolicy parses a configured policy name. Empty means PolicySkip.
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch p := MalformedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicySkip, nil
	case PolicySkip, PolicyWarn, PolicyFail:
		return p, nil
	}
	return "", fmt.Errorf("unknown malformed date policy %q (want skip, warn or fail)", s)
}
