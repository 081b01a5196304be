package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/watzon/syncstore/internal/requestctx"
	"github.com/watzon/syncstore/internal/store"
	"github.com/watzon/syncstore/internal/user"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

func Error(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	resp := ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if r != nil {
		resp.RequestID = requestctx.RequestID(r.Context())
	}
	JSON(w, status, resp)
}

func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusNotFound, "NOT_FOUND", message)
}

func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusBadRequest, "BAD_REQUEST", message)
}

func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusForbidden, "FORBIDDEN", message)
}

func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// StoreError maps the store's error taxonomy onto the wire: not-found 404,
// validation 400, permission-denied 403, everything else 500.
func StoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		Unauthorized(w, r, "invalid username or password")
	case store.IsNotFound(err):
		NotFound(w, r, err.Error())
	case store.IsValidation(err):
		BadRequest(w, r, err.Error())
	case store.IsPermissionDenied(err):
		Forbidden(w, r, "permission denied")
	default:
		InternalError(w, r, err.Error())
	}
}
