// Package respond standardises how the API writes JSON bodies and errors.
//
// CONSISTENT ERROR FORMAT:
// Every non-2xx response has the same shape, whether it comes from a
// handler, the auth middleware, the router's 404/405 fallbacks or a
// recovered panic:
//
//	{"code": 404, "message": "joke not found with id abc123", "status": "Not Found"}
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/jokes-api/internal/apperror"
)

// ErrorBody is the standard error format returned by all API endpoints.
type ErrorBody struct {
	Code    int    `json:"code"`    // HTTP status code
	Message string `json:"message"` // Human-readable description
	Status  string `json:"status"`  // HTTP status text, e.g. "Forbidden"
}

// JSON sends data as a JSON response with the given status code.
// Headers and status are written before the body.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// Status writes the uniform error body for a bare status code.
func Status(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{
		Code:    status,
		Message: message,
		Status:  http.StatusText(status),
	})
}

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrAuthFailure), errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error maps a domain error to the right status and writes the error body.
//
// Only client-safe messages leave the process: persistence failures and
// unknown errors get a generic 500 message and are logged server-side with
// their full cause.
func Error(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		if logger != nil {
			logger.Error("request failed", slog.String("error", err.Error()))
		}
		Status(w, http.StatusInternalServerError, "internal server error")
		return
	}

	Status(w, status, appErr.Message)
}
