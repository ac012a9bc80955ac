package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/planner/internal/recurrence"
	"github.com/jw6ventures/planner/internal/store"
)

func TestRRule(t *testing.T) {
	start := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	tests := map[store.Recurrence]string{
		store.RecurrenceNone:     "",
		store.RecurrenceDaily:    "FREQ=DAILY",
		store.RecurrenceWorkdays: "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR",
		store.RecurrenceWeekends: "FREQ=WEEKLY;BYDAY=SA,SU",
		store.RecurrenceMonthly:  "FREQ=MONTHLY;BYMONTHDAY=10",
		store.RecurrenceYearly:   "FREQ=YEARLY;BYMONTH=6;BYMONTHDAY=10",
	}
	for rule, want := range tests {
		assert.Equal(t, want, RRule(rule, start), rule)
	}
}

func TestExportICS(t *testing.T) {
	svc, st := newTestService(t, recurrence.PolicySkip)
	ctx := context.Background()

	allDay := mustCreate(t, svc, CreateEventParams{Title: "Rent", Start: "2024-01-31", Recurrence: "monthly"})
	timed := mustCreate(t, svc, CreateEventParams{Title: "Dentist", Start: "2024-03-15 09:30", End: "2024-03-15 10:15"})
	task := mustCreate(t, svc, CreateEventParams{Title: "Taxes", Start: "2024-04-15", Type: "task", Priority: "High"})
	_, err := svc.ToggleCompleted(ctx, owner, task.ID)
	require.NoError(t, err)
	_, err = st.Events.Create(ctx, store.Event{OwnerID: owner, Title: "Broken", Start: "someday"})
	require.NoError(t, err)
	_, err = st.Events.Create(ctx, store.Event{OwnerID: "other", Title: "Foreign", Start: "2024-03-01"})
	require.NoError(t, err)
	legacy, err := st.Events.Create(ctx, store.Event{OwnerID: owner, Title: "Legacy", Start: "2024-5-2", Recurrence: store.RecurrenceYearly})
	require.NoError(t, err)

	out, err := svc.ExportICS(ctx, owner)
	require.NoError(t, err)
	text := strings.ReplaceAll(out, "\r\n", "\n")

	assert.Contains(t, text, "BEGIN:VCALENDAR")
	assert.Contains(t, text, "PRODID:"+productID)
	assert.Equal(t, 4, strings.Count(text, "BEGIN:VEVENT"))
	assert.NotContains(t, text, "Broken")
	assert.NotContains(t, text, "Foreign")

	assert.Contains(t, text, "UID:"+allDay.ID+"@planner")
	assert.Contains(t, text, "DTSTART;VALUE=DATE:20240131")
	assert.Contains(t, text, "DTEND;VALUE=DATE:20240201")
	assert.Contains(t, text, "RRULE:FREQ=MONTHLY;BYMONTHDAY=31")

	assert.Contains(t, text, "UID:"+timed.ID+"@planner")
	assert.Contains(t, text, "DTSTART:20240315T093000Z")
	assert.Contains(t, text, "DTEND:20240315T101500Z")

	assert.Contains(t, text, "UID:"+legacy.ID+"@planner")
	assert.Contains(t, text, "DTSTART;VALUE=DATE:20240502")
	assert.Contains(t, text, "RRULE:FREQ=YEARLY;BYMONTH=5;BYMONTHDAY=2")

	assert.Contains(t, text, "CATEGORIES:task")
	assert.Contains(t, text, "PRIORITY:1")
	assert.Contains(t, text, "STATUS:COMPLETED")
}
