package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so every response
// has the same headers and every error has the same shape:
//
//	{"error": "not_found", "message": "card not found with id 123"}

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/cards/internal/apperror"
)

// maxBodyBytes caps request bodies. Cards and credentials are tiny.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends data as JSON with the given status.
// Headers must be set before WriteHeader; after it they are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps an application error to a status code and sends it.
//
// This is the only place that knows about HTTP status codes for errors:
//
//	ErrValidation         → 400 validation_error
//	ErrConflict           → 400 conflict            (duplicate email)
//	ErrInvalidCredentials → 400 invalid_credentials
//	ErrStore              → 400 store_error         (cause logged, never sent)
//	ErrNotFound           → 404 not_found
//	ErrUnauthorized       → 401 unauthorized
//	anything else         → 500 internal_error
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.ErrorContext(r.Context(), "unhandled error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "an internal error occurred",
		})
		return
	}

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		status, kind = http.StatusBadRequest, "invalid_credentials"
	case errors.Is(err, apperror.ErrStore):
		status, kind = http.StatusBadRequest, "store_error"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, kind = http.StatusUnauthorized, "unauthorized"
	}

	if appErr.Cause != nil {
		logger.WarnContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", kind),
			slog.String("error", appErr.Error()),
		)
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
}

// decodeJSON reads a JSON body into dst.
//
// Unknown fields are ignored: the input structs are the allow-list of what a
// client may set. Malformed JSON, an empty body, or trailing data is a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for bodies whose fields are all optional:
// an empty body leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return apperror.ValidationFailed("", "request body is required")
		}
		return apperror.ValidationFailed("", fmt.Sprintf("invalid JSON body: %v", err))
	}
	if dec.More() {
		return apperror.ValidationFailed("", "request body must contain a single JSON object")
	}
	return nil
}
