package web

// errors.go maps domain errors onto HTTP responses.
//
// Handlers call respondError with whatever the service returned. The error
// kind decides the status code, the sanitized message becomes the body, and
// the technical cause is logged server-side with the request ID so nothing
// internal leaks to clients.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rowhouse/rowhouse/internal/core"
	"github.com/rowhouse/rowhouse/internal/logging"
)

// ErrorResponse is the JSON error body. Error duplicates Message for
// clients that only read the first field.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// statusForKind maps an error kind onto its HTTP status.
func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindExpired:
		return http.StatusGone
	case core.KindProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the mapped error response and logs the full cause.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(core.KindOf(err))
	message := core.PublicMessage(err)
	code := string(core.KindOf(err))
	if code == "" {
		code = "internal"
	}

	// A saturated ingest limiter is a capacity condition, not a caller
	// mistake: tell the client to retry.
	if errors.Is(err, core.ErrTooManyJobs) {
		status = http.StatusServiceUnavailable
		message = err.Error()
		code = "too_many_jobs"
		w.Header().Set("Retry-After", "30")
	}

	logging.FromContext(r.Context()).Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Message: message,
		Code:    code,
	})
}

// badRequest is a shortcut for request-shape failures detected in handlers.
func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	respondError(w, r, core.ValidationError(format, args...))
}
