package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/planner/internal/calendar"
	httperrors "github.com/jw6ventures/planner/internal/http/errors"
	"github.com/jw6ventures/planner/internal/recurrence"
)

// MonthOccurrences serves GET /api/occurrences?year=&month=&type=.
func (h *Handler) MonthOccurrences(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	year, err := intParam(r, "year", now.Year())
	if err != nil {
		writeError(w, r, err, "parse year")
		return
	}
	month, err := intParam(r, "month", int(now.Month()))
	if err != nil {
		writeError(w, r, err, "parse month")
		return
	}
	types, err := parseTypeFilter(r)
	if err != nil {
		writeError(w, r, err, "parse type")
		return
	}

	occs, err := h.calendar.Month(r.Context(), currentUser(r).ID, year, time.Month(month))
	if err != nil {
		writeError(w, r, err, "load month")
		return
	}
	httperrors.JSON(w, http.StatusOK, monthResponse{
		Year:        year,
		Month:       month,
		Occurrences: toOccurrences(recurrence.FilterByType(occs, types...)),
	})
}

// WeekOccurrences serves GET /api/occurrences/week?date=&type=.
func (h *Handler) WeekOccurrences(w http.ResponseWriter, r *http.Request) {
	h.rangeOccurrences(w, r, true)
}

// DayOccurrences serves GET /api/occurrences/day?date=&type=.
func (h *Handler) DayOccurrences(w http.ResponseWriter, r *http.Request) {
	h.rangeOccurrences(w, r, false)
}

func (h *Handler) rangeOccurrences(w http.ResponseWriter, r *http.Request, week bool) {
	day, err := parseDateParam(r, h.now())
	if err != nil {
		writeError(w, r, err, "parse date")
		return
	}
	types, err := parseTypeFilter(r)
	if err != nil {
		writeError(w, r, err, "parse type")
		return
	}

	from, to := day, day
	var occs []recurrence.Occurrence
	if week {
		from = calendar.WeekStart(day)
		to = from.AddDate(0, 0, 6)
		occs, err = h.calendar.Week(r.Context(), currentUser(r).ID, day)
	} else {
		occs, err = h.calendar.Day(r.Context(), currentUser(r).ID, day)
	}
	if err != nil {
		writeError(w, r, err, "load occurrences")
		return
	}
	httperrors.JSON(w, http.StatusOK, rangeResponse{
		From:        from.Format(recurrence.DateLayout),
		To:          to.Format(recurrence.DateLayout),
		Occurrences: toOccurrences(recurrence.FilterByType(occs, types...)),
	})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.calendar.ListEvents(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err, "list events")
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	httperrors.JSON(w, http.StatusOK, out)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req calendar.CreateEventParams
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := h.calendar.CreateEvent(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeError(w, r, err, "create event")
		return
	}
	w.Header().Set("Location", "/api/events/"+ev.ID)
	httperrors.JSON(w, http.StatusCreated, toEventResponse(*ev))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.calendar.GetEvent(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "get event")
		return
	}
	httperrors.JSON(w, http.StatusOK, toEventResponse(*ev))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := h.calendar.UpdateEvent(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		writeError(w, r, err, "update event")
		return
	}
	httperrors.JSON(w, http.StatusOK, toEventResponse(*ev))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.calendar.DeleteEvent(r.Context(), currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, "delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleCompleted(w http.ResponseWriter, r *http.Request) {
	ev, err := h.calendar.ToggleCompleted(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "toggle event")
		return
	}
	httperrors.JSON(w, http.StatusOK, toEventResponse(*ev))
}

// ExportICS serves the owner's events as an iCalendar feed.
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	body, err := h.calendar.ExportICS(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err, "export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="planner.ics"`)
	_, _ = w.Write([]byte(body))
}
