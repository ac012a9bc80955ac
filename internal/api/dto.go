package api

import (
	"time"

	"github.com/jw6ventures/planner/internal/recurrence"
	"github.com/jw6ventures/planner/internal/store"
)

type eventResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Recurrence  string    `json:"recurrence"`
	Priority    string    `json:"priority"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

func toEventResponse(ev store.Event) eventResponse {
	return eventResponse{
		ID:          ev.ID,
		Title:       ev.Title,
		Start:       ev.Start,
		End:         ev.End,
		Description: ev.Description,
		Type:        string(ev.Type),
		Recurrence:  string(ev.Recurrence),
		Priority:    string(ev.Priority),
		Completed:   ev.Completed,
		CreatedAt:   ev.CreatedAt,
	}
}

type occurrenceResponse struct {
	eventResponse
	Date string `json:"date"`
}

func toOccurrences(occs []recurrence.Occurrence) []occurrenceResponse {
	out := make([]occurrenceResponse, 0, len(occs))
	for _, o := range occs {
		out = append(out, occurrenceResponse{
			eventResponse: toEventResponse(o.Event),
			Date:          o.Date.Format(recurrence.DateLayout),
		})
	}
	return out
}

type monthResponse struct {
	Year        int                  `json:"year"`
	Month       int                  `json:"month"`
	Occurrences []occurrenceResponse `json:"occurrences"`
}

type rangeResponse struct {
	From        string               `json:"from"`
	To          string               `json:"to"`
	Occurrences []occurrenceResponse `json:"occurrences"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		DisplayName: u.DisplayName(),
		Email:       u.Email,
		CreatedAt:   u.CreatedAt,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// eventPatchRequest mirrors store.EventPatch; absent JSON fields stay nil.
type eventPatchRequest struct {
	Title       *string `json:"title"`
	Start       *string `json:"start"`
	End         *string `json:"end"`
	Description *string `json:"description"`
	Type        *string `json:"type"`
	Recurrence  *string `json:"recurrence"`
	Priority    *string `json:"priority"`
	Completed   *bool   `json:"completed"`
}

func (p eventPatchRequest) toPatch() store.EventPatch {
	patch := store.EventPatch{
		Title:       p.Title,
		Start:       p.Start,
		End:         p.End,
		Description: p.Description,
		Completed:   p.Completed,
	}
	if p.Type != nil {
		t := store.EventType(*p.Type)
		patch.Type = &t
	}
	if p.Recurrence != nil {
		r := store.Recurrence(*p.Recurrence)
		patch.Recurrence = &r
	}
	if p.Priority != nil {
		pr := store.Priority(*p.Priority)
		patch.Priority = &pr
	}
	return patch
}
