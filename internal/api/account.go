package api

import (
	"net/http"

	"github.com/jw6ventures/planner/internal/auth"
	httperrors "github.com/jw6ventures/planner/internal/http/errors"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterParams
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "register")
		return
	}
	if err := h.auth.Sessions().Issue(w, user.ID); err != nil {
		httperrors.InternalError(w, r, err, "issue session")
		return
	}
	httperrors.JSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err, "login")
		return
	}
	if err := h.auth.Sessions().Issue(w, user.ID); err != nil {
		httperrors.InternalError(w, r, err, "issue session")
		return
	}
	httperrors.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Sessions().Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	httperrors.JSON(w, http.StatusOK, toUserResponse(currentUser(r)))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req auth.ProfileParams
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.auth.UpdateProfile(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeError(w, r, err, "update profile")
		return
	}
	httperrors.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ChangePassword(r.Context(), currentUser(r).ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err, "change password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
