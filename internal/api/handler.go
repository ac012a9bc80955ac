// Package api implements the JSON endpoints for accounts, events and
// calendar views.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/planner/internal/auth"
	"github.com/jw6ventures/planner/internal/calendar"
	httperrors "github.com/jw6ventures/planner/internal/http/errors"
	"github.com/jw6ventures/planner/internal/recurrence"
	"github.com/jw6ventures/planner/internal/store"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	calendar *calendar.Service
	auth     *auth.Service
	now      func() time.Time
}

func NewHandler(cal *calendar.Service, authService *auth.Service) *Handler {
	return &Handler{calendar: cal, auth: authService, now: time.Now}
}

// AuthRoutes registers the public account endpoints.
func (h *Handler) AuthRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/oidc/login", h.auth.BeginOAuth)
	r.Get("/oidc/callback", h.auth.HandleOAuthCallback)
}

// Routes registers the endpoints that need a session.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/occurrences", h.MonthOccurrences)
	r.Get("/occurrences/week", h.WeekOccurrences)
	r.Get("/occurrences/day", h.DayOccurrences)

	r.Get("/events", h.ListEvents)
	r.Post("/events", h.CreateEvent)
	r.Get("/events/{id}", h.GetEvent)
	r.Patch("/events/{id}", h.UpdateEvent)
	r.Delete("/events/{id}", h.DeleteEvent)
	r.Post("/events/{id}/toggle", h.ToggleCompleted)

	r.Get("/calendar.ics", h.ExportICS)

	r.Get("/account", h.GetAccount)
	r.Put("/account", h.UpdateAccount)
	r.Post("/account/password", h.ChangePassword)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httperrors.Write(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		httperrors.Write(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, calendar.ErrValidation):
		httperrors.Write(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		httperrors.Write(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, calendar.ErrMalformedEvents):
		httperrors.LogError(r, action, err)
		httperrors.Write(w, r, http.StatusInternalServerError, err.Error())
	default:
		httperrors.InternalError(w, r, err, action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid JSON body")
		return false
	}
	return true
}

// currentUser returns the session user. RequireSession guarantees it exists.
func currentUser(r *http.Request) *store.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

func parseTypeFilter(r *http.Request) ([]store.EventType, error) {
	v := r.URL.Query().Get("type")
	if v == "" {
		return nil, nil
	}
	t := store.EventType(v)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: type must be event or task", calendar.ErrValidation)
	}
	return []store.EventType{t}, nil
}

func parseDateParam(r *http.Request, now time.Time) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(recurrence.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", calendar.ErrValidation)
	}
	return d, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", calendar.ErrValidation, name)
	}
	return n, nil
}
