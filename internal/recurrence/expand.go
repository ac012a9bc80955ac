// Package recurrence expands stored events into the concrete occurrences that
// fall within one calendar month.
//
// Expansion is a pure function of its inputs: it performs no I/O, holds no
// state between calls and may be called concurrently.
package recurrence

import (
	"sort"
	"time"

	"github.com/jw6ventures/planner/internal/store"
)

// Occurrence is one appearance of an event on one day. The embedded record is
// a copy of the source event; recurring instances have Start and End
// rewritten to Date in DateLayout, so any time of day is dropped. Instances of
// the same recurring event share its ID.
type Occurrence struct {
	store.Event
	// Date is the day of the occurrence at midnight UTC.
	Date time.Time
}

// Result is the outcome of expanding one month.
type Result struct {
	Occurrences []Occurrence
	// Malformed lists the IDs of records dropped because their start date or
	// recurrence rule could not be interpreted.
	Malformed []string
}

// OccurrencesForMonth returns the occurrences of events within year/month.
//
// Records owned by someone other than ownerID are ignored; an empty ownerID
// disables that check. Non-recurring events appear unmodified when they start
// in the month. Recurring events produce one instance per matching day on or
// after their own start date. Output follows input order, then ascending day
// within one recurring event; nothing is sorted across events.
func OccurrencesForMonth(events []store.Event, ownerID string, year int, month time.Month) []Occurrence {
	return Expand(events, ownerID, year, month).Occurrences
}

// Expand is OccurrencesForMonth that also reports the records it dropped.
func Expand(events []store.Event, ownerID string, year int, month time.Month) Result {
	var res Result
	if month < time.January || month > time.December {
		return res
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := DaysIn(year, month)

	for _, ev := range events {
		if ownerID != "" && ev.OwnerID != ownerID {
			continue
		}
		start, err := ParseStartDate(ev.Start)
		if err != nil {
			res.Malformed = append(res.Malformed, ev.ID)
			continue
		}
		rule, ok := store.ParseRecurrence(string(ev.Recurrence))
		if !ok {
			res.Malformed = append(res.Malformed, ev.ID)
			continue
		}

		if rule == store.RecurrenceNone {
			if start.Year() == year && start.Month() == month {
				res.Occurrences = append(res.Occurrences, Occurrence{Event: ev, Date: start})
			}
			continue
		}

		if monthIndex(start.Year(), start.Month()) > monthIndex(year, month) {
			continue
		}
		for d := 0; d < days; d++ {
			current := first.AddDate(0, 0, d)
			if current.Before(start) || !Matches(rule, start, current) {
				continue
			}
			instance := ev
			instance.Start = current.Format(DateLayout)
			instance.End = instance.Start
			res.Occurrences = append(res.Occurrences, Occurrence{Event: instance, Date: current})
		}
	}
	return res
}

// SortChronological orders occurrences by day, then by the time of day of
// their Start value (date-only values first). The sort is stable.
func SortChronological(occs []Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Date.Equal(occs[j].Date) {
			return occs[i].Date.Before(occs[j].Date)
		}
		return minuteOfDay(occs[i].Start) < minuteOfDay(occs[j].Start)
	})
}

// FilterByType keeps occurrences of the given types. With no types it
// returns occs unchanged.
func FilterByType(occs []Occurrence, types ...store.EventType) []Occurrence {
	if len(types) == 0 {
		return occs
	}
	out := make([]Occurrence, 0, len(occs))
	for _, o := range occs {
		for _, t := range types {
			if o.Type == t || (t == store.TypeEvent && o.Type == "") {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

func monthIndex(year int, month time.Month) int {
	return year*12 + int(month) - 1
}

func minuteOfDay(value string) int {
	t, err := time.Parse(StoredDateTimeLayout, value)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}
