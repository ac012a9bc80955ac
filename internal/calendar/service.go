// Package calendar is the application layer over stored events: month, week
// and day views built on the recurrence engine, and the single write path
// every event producer goes through.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jw6ventures/planner/internal/metrics"
	"github.com/jw6ventures/planner/internal/recurrence"
	"github.com/jw6ventures/planner/internal/store"
	"github.com/jw6ventures/planner/internal/validation"
)

// Service answers calendar queries for one owner at a time.
type Service struct {
	events store.EventRepository
	policy recurrence.MalformedPolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewService(events store.EventRepository, policy recurrence.MalformedPolicy, logger *zap.Logger) *Service {
	if policy == "" {
		policy = recurrence.PolicySkip
	}
	return &Service{events: events, policy: policy, logger: logger, now: time.Now}
}

// Month returns the occurrences of ownerID's events in year/month in engine
// order.
func (s *Service) Month(ctx context.Context, ownerID string, year int, month time.Month) ([]recurrence.Occurrence, error) {
	if month < time.January || month > time.December {
		return nil, validation.Errorf("month must be between 1 and 12")
	}
	events, err := s.events.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	res := recurrence.Expand(events, ownerID, year, month)
	if err := s.applyPolicy(ownerID, res.Malformed); err != nil {
		return nil, err
	}
	countOccurrences(res.Occurrences)
	return res.Occurrences, nil
}

// Range returns the occurrences on days from through to, inclusive, sorted
// chronologically.
func (s *Service) Range(ctx context.Context, ownerID string, from, to time.Time) ([]recurrence.Occurrence, error) {
	from, to = truncateDay(from), truncateDay(to)
	if to.Before(from) {
		return nil, validation.Errorf("range end is before its start")
	}
	events, err := s.events.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var (
		out       []recurrence.Occurrence
		malformed []string
	)
	for m := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(to); m = m.AddDate(0, 1, 0) {
		res := recurrence.Expand(events, ownerID, m.Year(), m.Month())
		if malformed == nil {
			// Every month reports the same records.
			malformed = res.Malformed
		}
		for _, o := range res.Occurrences {
			if !o.Date.Before(from) && !o.Date.After(to) {
				out = append(out, o)
			}
		}
	}
	if err := s.applyPolicy(ownerID, malformed); err != nil {
		return nil, err
	}
	recurrence.SortChronological(out)
	countOccurrences(out)
	return out, nil
}

// Week returns the occurrences of the Sunday-start week containing day.
func (s *Service) Week(ctx context.Context, ownerID string, day time.Time) ([]recurrence.Occurrence, error) {
	start := WeekStart(day)
	return s.Range(ctx, ownerID, start, start.AddDate(0, 0, 6))
}

// Day returns the occurrences on one day.
func (s *Service) Day(ctx context.Context, ownerID string, day time.Time) ([]recurrence.Occurrence, error) {
	return s.Range(ctx, ownerID, day, day)
}

// WeekStart returns the Sunday on or before day.
func WeekStart(day time.Time) time.Time {
	d := truncateDay(day)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

func (s *Service) applyPolicy(ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	metrics.AddMalformedEvents(len(ids))
	switch s.policy {
	case recurrence.PolicyWarn:
		for _, id := range ids {
			s.logger.Warn("skipping event with malformed start date", zap.String("owner_id", ownerID), zap.String("event_id", id))
		}
	case recurrence.PolicyFail:
		return &MalformedEventsError{IDs: ids}
	}
	return nil
}

func countOccurrences(occs []recurrence.Occurrence) {
	perRule := make(map[store.Recurrence]int)
	for _, o := range occs {
		rule, _ := store.ParseRecurrence(string(o.Recurrence))
		perRule[rule]++
	}
	for rule, n := range perRule {
		metrics.AddOccurrences(string(rule), n)
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateEventParams is the input of CreateEvent. Empty optional fields take
// their defaults: End is Start, Type is event, Recurrence is none and
// Priority is Medium.
type CreateEventParams struct {
	Title       string `json:"title" validate:"required,max=200"`
	Start       string `json:"start" validate:"required,eventdate"`
	End         string `json:"end" validate:"omitempty,eventdate"`
	Description string `json:"description" validate:"max=4000"`
	Type        string `json:"type" validate:"omitempty,oneof=event task"`
	Recurrence  string `json:"recurrence" validate:"omitempty,oneof=none daily workdays weekends monthly yearly"`
	Priority    string `json:"priority" validate:"omitempty,oneof=High Medium Low"`
}

// eventInput is the validated shape of a complete record.
type eventInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Start       string `json:"start" validate:"required,eventdate"`
	End         string `json:"end" validate:"required,eventdate"`
	Description string `json:"description" validate:"max=4000"`
	Type        string `json:"type" validate:"oneof=event task"`
	Recurrence  string `json:"recurrence" validate:"oneof=none daily workdays weekends monthly yearly"`
	Priority    string `json:"priority" validate:"oneof=High Medium Low"`
}

// CreateEvent validates and stores a new event for ownerID. It is the write
// path for every producer of events.
func (s *Service) CreateEvent(ctx context.Context, ownerID string, p CreateEventParams) (*store.Event, error) {
	p.Recurrence = strings.ToLower(strings.TrimSpace(p.Recurrence))
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	ev := store.Event{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(p.Title),
		Start:       p.Start,
		End:         p.End,
		Description: p.Description,
		Type:        store.EventType(p.Type),
		Recurrence:  store.Recurrence(p.Recurrence),
		Priority:    store.Priority(p.Priority),
		CreatedAt:   s.now().UTC(),
	}
	normalize(&ev)
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	created, err := s.events.Create(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Debug("event created", zap.String("owner_id", ownerID), zap.String("event_id", created.ID),
		zap.String("recurrence", string(created.Recurrence)))
	return created, nil
}

// GetEvent returns one stored event.
func (s *Service) GetEvent(ctx context.Context, ownerID, id string) (*store.Event, error) {
	return s.events.GetByID(ctx, ownerID, id)
}

// ListEvents returns the stored events of ownerID in creation order.
func (s *Service) ListEvents(ctx context.Context, ownerID string) ([]store.Event, error) {
	events, err := s.events.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// UpdateEvent applies patch to an owned event and returns the result. The
// patched record must pass the same checks as a new one.
func (s *Service) UpdateEvent(ctx context.Context, ownerID, id string, patch store.EventPatch) (*store.Event, error) {
	current, err := s.events.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if patch.Recurrence != nil {
		rule := store.Recurrence(strings.ToLower(strings.TrimSpace(string(*patch.Recurrence))))
		if rule == "" {
			rule = store.RecurrenceNone
		}
		patch.Recurrence = &rule
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	// Unpadded dates from older records are rewritten on their next update.
	if patch.Start == nil {
		patch.Start = canonicalDate(current.Start)
	}
	if patch.End == nil {
		patch.End = canonicalDate(current.End)
	}

	next := *current
	patch.Apply(&next)
	if err := validateEvent(next); err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, ownerID, id, patch); err != nil {
		return nil, err
	}
	return &next, nil
}

// DeleteEvent removes an owned event.
func (s *Service) DeleteEvent(ctx context.Context, ownerID, id string) error {
	return s.events.Delete(ctx, ownerID, id)
}

// ToggleCompleted flips the completion flag of a task.
func (s *Service) ToggleCompleted(ctx context.Context, ownerID, id string) (*store.Event, error) {
	current, err := s.events.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if current.Type != store.TypeTask {
		return nil, validation.Errorf("only tasks can be completed")
	}
	completed := !current.Completed
	if err := s.events.Update(ctx, ownerID, id, store.EventPatch{Completed: &completed}); err != nil {
		return nil, err
	}
	current.Completed = completed
	return current, nil
}

// canonicalDate returns value in DateLayout or DateTimeLayout when it is a
// readable stored date not already in that form, and nil otherwise.
func canonicalDate(value string) *string {
	var out string
	if t, err := time.Parse(recurrence.StoredDateLayout, value); err == nil {
		out = t.Format(recurrence.DateLayout)
	} else if t, err := time.Parse(recurrence.StoredDateTimeLayout, value); err == nil {
		out = t.Format(recurrence.DateTimeLayout)
	}
	if out == "" || out == value {
		return nil
	}
	return &out
}

func normalize(ev *store.Event) {
	if ev.End == "" {
		ev.End = ev.Start
	}
	if ev.Type == "" {
		ev.Type = store.TypeEvent
	}
	if ev.Recurrence == "" {
		ev.Recurrence = store.RecurrenceNone
	}
	if ev.Priority == "" {
		ev.Priority = store.PriorityMedium
	}
}

func validateEvent(ev store.Event) error {
	if err := validation.Struct(eventInput{
		Title:       ev.Title,
		Start:       ev.Start,
		End:         ev.End,
		Description: ev.Description,
		Type:        string(ev.Type),
		Recurrence:  string(ev.Recurrence),
		Priority:    string(ev.Priority),
	}); err != nil {
		return err
	}
	startDay, _, _ := strings.Cut(ev.Start, " ")
	endDay, _, _ := strings.Cut(ev.End, " ")
	if endDay < startDay {
		return validation.Errorf("end must not be before start")
	}
	return nil
}
