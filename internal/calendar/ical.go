package calendar

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jw6ventures/planner/internal/recurrence"
	"github.com/jw6ventures/planner/internal/store"
)

const productID = "-//jw6ventures//planner//EN"

// ExportICS renders the stored events of ownerID as an iCalendar feed. Each
// record becomes one VEVENT; recurring records carry an RRULE instead of
// being expanded. Records with a malformed start are left out.
func (s *Service) ExportICS(ctx context.Context, ownerID string) (string, error) {
	events, err := s.events.ListByOwner(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName("Planner")

	stamp := s.now().UTC()
	for _, ev := range events {
		start, allDay, err := parseEventTime(ev.Start)
		if err != nil {
			s.logger.Debug("omitting event from export", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		rule, ok := store.ParseRecurrence(string(ev.Recurrence))
		if !ok {
			continue
		}

		vev := cal.AddEvent(ev.ID + "@planner")
		vev.SetDtStampTime(stamp)
		if !ev.CreatedAt.IsZero() {
			vev.SetCreatedTime(ev.CreatedAt)
		}
		vev.SetSummary(ev.Title)
		if ev.Description != "" {
			vev.SetDescription(ev.Description)
		}
		vev.AddCategory(string(ev.Type))
		if ev.Type == store.TypeTask {
			vev.SetPriority(icsPriority(ev.Priority))
			if ev.Completed {
				vev.SetStatus(ics.ObjectStatusCompleted)
			}
		}

		end, endAllDay, err := parseEventTime(ev.End)
		if err != nil || end.Before(start) {
			end, endAllDay = start, allDay
		}
		if allDay {
			vev.SetAllDayStartAt(start)
			if !endAllDay {
				end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
			}
			// DTEND is exclusive for all-day events.
			vev.SetAllDayEndAt(end.AddDate(0, 0, 1))
		} else {
			vev.SetStartAt(start)
			vev.SetEndAt(end)
		}

		if text := RRule(rule, start); text != "" {
			vev.AddRrule(text)
		}
	}
	return cal.Serialize(), nil
}

// RRule returns the RFC 5545 recurrence rule equivalent to rule for a series
// starting on start, without the "RRULE:" prefix. It is empty for
// RecurrenceNone.
func RRule(rule store.Recurrence, start time.Time) string {
	opt := rrule.ROption{}
	switch rule {
	case store.RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case store.RecurrenceWorkdays:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case store.RecurrenceWeekends:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.SA, rrule.SU}
	case store.RecurrenceMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{start.Day()}
	case store.RecurrenceYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(start.Month())}
		opt.Bymonthday = []int{start.Day()}
	default:
		return ""
	}
	return opt.RRuleString()
}

func parseEventTime(value string) (time.Time, bool, error) {
	if t, err := time.Parse(recurrence.StoredDateLayout, value); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(recurrence.StoredDateTimeLayout, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}

func icsPriority(p store.Priority) int {
	switch p {
	case store.PriorityHigh:
		return 1
	case store.PriorityLow:
		return 9
	default:
		return 5
	}
}
