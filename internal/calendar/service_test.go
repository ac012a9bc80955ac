package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jw6ventures/planner/internal/recurrence"
	"github.com/jw6ventures/planner/internal/store"
)

const owner = "user-1"

func newTestService(t *testing.T, policy recurrence.MalformedPolicy) (*Service, *store.Store) {
	t.Helper()
	st := store.NewMemory()
	svc := NewService(st.Events, policy, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }
	return svc, st
}

func mustCreate(t *testing.T, svc *Service, p CreateEventParams) *store.Event {
	t.Helper()
	ev, err := svc.CreateEvent(context.Background(), owner, p)
	require.NoError(t, err)
	return ev
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateEventDefaults(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)

	ev := mustCreate(t, svc, CreateEventParams{Title: "  Dentist ", Start: "2024-03-15 09:30"})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, owner, ev.OwnerID)
	assert.Equal(t, "Dentist", ev.Title)
	assert.Equal(t, "2024-03-15 09:30", ev.End)
	assert.Equal(t, store.TypeEvent, ev.Type)
	assert.Equal(t, store.RecurrenceNone, ev.Recurrence)
	assert.Equal(t, store.PriorityMedium, ev.Priority)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), ev.CreatedAt)

	task := mustCreate(t, svc, CreateEventParams{Title: "Report", Start: "2024-03-04", Type: "task", Recurrence: "Workdays", Priority: "High"})
	assert.Equal(t, store.TypeTask, task.Type)
	assert.Equal(t, store.RecurrenceWorkdays, task.Recurrence)
	assert.Equal(t, store.PriorityHigh, task.Priority)
}

func TestCreateEventValidation(t *testing.T) {
	svc, st := newTestService(t, recurrence.PolicySkip)

	tests := []struct {
		name string
		p    CreateEventParams
		want string
	}{
		{name: "missing title", p: CreateEventParams{Start: "2024-03-15"}, want: "title is required"},
		{name: "blank title", p: CreateEventParams{Title: "   ", Start: "2024-03-15"}, want: "title is required"},
		{name: "bad start", p: CreateEventParams{Title: "x", Start: "15/03/2024"}, want: "start must be"},
		{name: "impossible date", p: CreateEventParams{Title: "x", Start: "2023-02-29"}, want: "start must be"},
		{name: "unknown recurrence", p: CreateEventParams{Title: "x", Start: "2024-03-15", Recurrence: "fortnightly"}, want: "recurrence must be one of"},
		{name: "unknown type", p: CreateEventParams{Title: "x", Start: "2024-03-15", Type: "reminder"}, want: "type must be one of"},
		{name: "unknown priority", p: CreateEventParams{Title: "x", Start: "2024-03-15", Priority: "urgent"}, want: "priority must be one of"},
		{name: "end before start", p: CreateEventParams{Title: "x", Start: "2024-03-15", End: "2024-03-14"}, want: "end must not be before start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEvent(context.Background(), owner, tt.p)
			require.ErrorIs(t, err, ErrValidation)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	events, err := st.Events.ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, events, "rejected input is never stored")
}

func TestMonthExpandsStoredEvents(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	mustCreate(t, svc, CreateEventParams{Title: "Standup", Start: "2024-01-01 09:00", Recurrence: "workdays"})
	mustCreate(t, svc, CreateEventParams{Title: "Rent", Start: "2024-01-31", Recurrence: "monthly"})
	mustCreate(t, svc, CreateEventParams{Title: "Trip", Start: "2024-02-10"})

	occs, err := svc.Month(context.Background(), owner, 2024, time.February)
	require.NoError(t, err)
	// 21 workdays, no 31st, one trip.
	require.Len(t, occs, 22)
	assert.Equal(t, "Standup", occs[0].Title)
	assert.Equal(t, "2024-02-01", occs[0].Start)
	assert.Equal(t, "Trip", occs[21].Title)

	_, err = svc.Month(context.Background(), owner, 2024, 13)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMonthIsScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	mustCreate(t, svc, CreateEventParams{Title: "Mine", Start: "2024-02-10"})

	occs, err := svc.Month(context.Background(), "someone-else", 2024, time.February)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func seedMalformed(t *testing.T, st *store.Store) *store.Event {
	t.Helper()
	bad, err := st.Events.Create(context.Background(), store.Event{OwnerID: owner, Title: "Legacy", Start: "March 3rd", Recurrence: store.RecurrenceDaily})
	require.NoError(t, err)
	_, err = st.Events.Create(context.Background(), store.Event{OwnerID: owner, Title: "Fine", Start: "2024-03-03"})
	require.NoError(t, err)
	return bad
}

func TestMalformedPolicies(t *testing.T) {
	t.Run("skip", func(t *testing.T) {
		svc, st := newTestService(t, recurrence.PolicySkip)
		seedMalformed(t, st)
		occs, err := svc.Month(context.Background(), owner, 2024, time.March)
		require.NoError(t, err)
		require.Len(t, occs, 1)
		assert.Equal(t, "Fine", occs[0].Title)
	})

	t.Run("warn", func(t *testing.T) {
		svc, st := newTestService(t, recurrence.PolicyWarn)
		core, logs := observer.New(zapcore.WarnLevel)
		svc.logger = zap.New(core)
		bad := seedMalformed(t, st)

		occs, err := svc.Month(context.Background(), owner, 2024, time.March)
		require.NoError(t, err)
		assert.Len(t, occs, 1)
		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, bad.ID, entries[0].ContextMap()["event_id"])
	})

	t.Run("fail", func(t *testing.T) {
		svc, st := newTestService(t, recurrence.PolicyFail)
		bad := seedMalformed(t, st)

		_, err := svc.Month(context.Background(), owner, 2024, time.March)
		require.ErrorIs(t, err, ErrMalformedEvents)
		var mErr *MalformedEventsError
		require.True(t, errors.As(err, &mErr))
		assert.Equal(t, []string{bad.ID}, mErr.IDs)

		_, err = svc.Week(context.Background(), owner, day(2024, 3, 3))
		assert.ErrorIs(t, err, ErrMalformedEvents)
	})
}

func TestWeekStartsOnSunday(t *testing.T) {
	assert.Equal(t, day(2024, 3, 3), WeekStart(day(2024, 3, 3)))
	assert.Equal(t, day(2024, 3, 3), WeekStart(time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, day(2024, 2, 25), WeekStart(day(2024, 3, 1)))
}

func TestWeekSpansMonthsAndSorts(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	mustCreate(t, svc, CreateEventParams{Title: "Late", Start: "2024-03-01 18:00"})
	mustCreate(t, svc, CreateEventParams{Title: "Gym", Start: "2024-01-06", Recurrence: "weekends"})
	mustCreate(t, svc, CreateEventParams{Title: "Early", Start: "2024-03-01 07:00"})
	mustCreate(t, svc, CreateEventParams{Title: "Outside", Start: "2024-03-03"})

	// Sunday 2024-02-25 through Saturday 2024-03-02.
	occs, err := svc.Week(context.Background(), owner, day(2024, 2, 28))
	require.NoError(t, err)

	var got []string
	for _, o := range occs {
		got = append(got, o.Start+" "+o.Title)
	}
	assert.Equal(t, []string{
		"2024-02-25 Gym",
		"2024-03-01 07:00 Early",
		"2024-03-01 18:00 Late",
		"2024-03-02 Gym",
	}, got)
}

func TestDay(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	mustCreate(t, svc, CreateEventParams{Title: "Birthday", Start: "2020-07-04", Recurrence: "yearly"})
	mustCreate(t, svc, CreateEventParams{Title: "Other", Start: "2024-07-05"})

	occs, err := svc.Day(context.Background(), owner, day(2024, 7, 4))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "Birthday", occs[0].Title)
	assert.Equal(t, "2024-07-04", occs[0].Start)
}

func TestRangeRejectsReversedBounds(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	_, err := svc.Range(context.Background(), owner, day(2024, 3, 2), day(2024, 3, 1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateEvent(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	ctx := context.Background()
	ev := mustCreate(t, svc, CreateEventParams{Title: "Call", Start: "2024-03-05"})

	title := "Call mom"
	rule := store.Recurrence(" Monthly ")
	updated, err := svc.UpdateEvent(ctx, owner, ev.ID, store.EventPatch{Title: &title, Recurrence: &rule})
	require.NoError(t, err)
	assert.Equal(t, "Call mom", updated.Title)
	assert.Equal(t, store.RecurrenceMonthly, updated.Recurrence)

	stored, err := svc.GetEvent(ctx, owner, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, *updated, *stored)

	badStart := "tomorrow"
	_, err = svc.UpdateEvent(ctx, owner, ev.ID, store.EventPatch{Start: &badStart})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateEvent(ctx, "intruder", ev.ID, store.EventPatch{Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnpaddedDatesReadAndRewritten(t *testing.T) {
	svc, st := newTestService(t, recurrence.PolicySkip)
	ctx := context.Background()
	legacy, err := st.Events.Create(ctx, store.Event{
		OwnerID: owner, Title: "Standup", Start: "2024-3-4 9:15", End: "2024-3-4 9:30",
		Type: store.TypeEvent, Recurrence: store.RecurrenceWorkdays, Priority: store.PriorityMedium,
	})
	require.NoError(t, err)

	occs, err := svc.Day(ctx, owner, day(2024, 3, 6))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, legacy.ID, occs[0].ID)

	title := "Daily standup"
	updated, err := svc.UpdateEvent(ctx, owner, legacy.ID, store.EventPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04 09:15", updated.Start)
	assert.Equal(t, "2024-03-04 09:30", updated.End)

	stored, err := svc.GetEvent(ctx, owner, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04 09:15", stored.Start)
}

func TestToggleCompleted(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	ctx := context.Background()
	task := mustCreate(t, svc, CreateEventParams{Title: "Taxes", Start: "2024-04-15", Type: "task"})
	ev := mustCreate(t, svc, CreateEventParams{Title: "Party", Start: "2024-04-16"})

	toggled, err := svc.ToggleCompleted(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	toggled, err = svc.ToggleCompleted(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Completed)

	_, err = svc.ToggleCompleted(ctx, owner, ev.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteAndList(t *testing.T) {
	svc, _ := newTestService(t, recurrence.PolicySkip)
	ctx := context.Background()
	a := mustCreate(t, svc, CreateEventParams{Title: "A", Start: "2024-04-15"})
	b := mustCreate(t, svc, CreateEventParams{Title: "B", Start: "2024-04-16"})

	assert.ErrorIs(t, svc.DeleteEvent(ctx, "intruder", a.ID), store.ErrNotFound)
	require.NoError(t, svc.DeleteEvent(ctx, owner, a.ID))
	assert.ErrorIs(t, svc.DeleteEvent(ctx, owner, a.ID), store.ErrNotFound)

	events, err := svc.ListEvents(ctx, owner)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, b.ID, events[0].ID)
}
