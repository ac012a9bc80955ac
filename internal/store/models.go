package store

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// User is an account that owns events.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Name         string
	Email        string
	OAuthSubject *string
	CreatedAt    time.Time
}

// DisplayName falls back to the capitalized username when no name was set:
// first letter upper case, the rest lower case.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(u.Username)
	return string(unicode.ToUpper(first)) + strings.ToLower(u.Username[size:])
}

// EventType classifies an event record. It has no effect on recurrence.
type EventType string

const (
	TypeEvent EventType = "event"
	TypeTask  EventType = "task"
)

// Valid reports whether t is one of the known types.
func (t EventType) Valid() bool {
	return t == TypeEvent || t == TypeTask
}

// Recurrence names the rule an event repeats by. RecurrenceNone is an explicit
// variant; an empty value is normalized to it with ParseRecurrence.
type Recurrence string

const (
	RecurrenceNone     Recurrence = "none"
	RecurrenceDaily    Recurrence = "daily"
	RecurrenceWorkdays Recurrence = "workdays"
	RecurrenceWeekends Recurrence = "weekends"
	RecurrenceMonthly  Recurrence = "monthly"
	RecurrenceYearly   Recurrence = "yearly"
)

// Recurrences lists every supported rule, RecurrenceNone first.
var Recurrences = []Recurrence{
	RecurrenceNone,
	RecurrenceDaily,
	RecurrenceWorkdays,
	RecurrenceWeekends,
	RecurrenceMonthly,
	RecurrenceYearly,
}

// ParseRecurrence maps a stored or submitted value onto a Recurrence. Empty
// input means RecurrenceNone.
func ParseRecurrence(s string) (Recurrence, bool) {
	v := Recurrence(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return RecurrenceNone, true
	}
	for _, r := range Recurrences {
		if r == v {
			return r, true
		}
	}
	return v, false
}

// Priority applies to tasks only.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Event is a stored calendar entry. Start and End hold text in the form
// "YYYY-MM-DD" or "YYYY-MM-DD HH:MM".
type Event struct {
	ID          string
	OwnerID     string
	Title       string
	Start       string
	End         string
	Description string
	Type        EventType
	Recurrence  Recurrence
	Priority    Priority
	Completed   bool
	CreatedAt   time.Time
}

// IsRecurring reports whether the event carries a rule other than none.
func (e Event) IsRecurring() bool {
	return e.Recurrence != "" && e.Recurrence != RecurrenceNone
}

// EventPatch is a targeted update; nil fields are left untouched.
type EventPatch struct {
	Title       *string
	Start       *string
	End         *string
	Description *string
	Type        *EventType
	Recurrence  *Recurrence
	Priority    *Priority
	Completed   *bool
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Start == nil && p.End == nil && p.Description == nil &&
		p.Type == nil && p.Recurrence == nil && p.Priority == nil && p.Completed == nil
}

// Apply writes the present fields of p onto ev.
func (p EventPatch) Apply(ev *Event) {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Type != nil {
		ev.Type = *p.Type
	}
	if p.Recurrence != nil {
		ev.Recurrence = *p.Recurrence
	}
	if p.Priority != nil {
		ev.Priority = *p.Priority
	}
	if p.Completed != nil {
		ev.Completed = *p.Completed
	}
}
