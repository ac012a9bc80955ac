package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

// Write sends message to the client with status, tagged with the request ID.
func Write(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, status, Body{Error: message, RequestID: middleware.GetReqID(r.Context())})
}

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	LogError(r, message, err)

	// Return generic error to client
	Write(w, r, http.StatusInternalServerError, "internal server error")
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	logger(r).Warn("bad request", zap.Error(err))
	Write(w, r, http.StatusBadRequest, clientMessage)
}

func LogError(r *http.Request, message string, err error) {
	logger(r).Error(message, zap.Error(err))
}

func LogInfo(r *http.Request, message string) {
	logger(r).Info(message)
}

func logger(r *http.Request) *zap.Logger {
	l := zap.L()
	if id := middleware.GetReqID(r.Context()); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	return l
}
