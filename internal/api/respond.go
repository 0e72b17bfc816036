package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/plantops/mv-backend/internal/apperr"
	"github.com/plantops/mv-backend/internal/middleware"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, builder *ErrorBuilder) {
	writeJSON(w, status, builder.Create())
}

// writeAppErr maps a service error onto the wire envelope. Anything that
// is not an apperr surfaces as a generic internal error so storage
// details never leak to clients.
func writeAppErr(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		middleware.GetLoggerFromContext(r.Context()).Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred"))
		return
	}

	builder := NewError(errorCode(appErr.Code), appErr.Message)
	if len(appErr.Details) > 0 {
		details := make([]ErrorDetail, len(appErr.Details))
		for i, d := range appErr.Details {
			details[i] = ErrorDetail{Field: d.Field, Message: d.Message}
		}
		builder = builder.WithDetails(details)
	}

	status := errorStatus(appErr.Code)
	if status >= 500 {
		middleware.GetLoggerFromContext(r.Context()).Error("request failed", "code", appErr.Code, "error", err)
	}
	writeError(w, status, builder)
}

func errorStatus(code string) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeConflict, apperr.CodeAlreadyProcessed, apperr.CodePendingExists, apperr.CodeDuplicatePriority:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(code string) string {
	switch code {
	case apperr.CodeValidation:
		return CodeValidationError
	case apperr.CodeNotFound:
		return CodeResourceNotFound
	case apperr.CodeForbidden:
		return CodePermissionDenied
	case apperr.CodeConflict:
		return CodeConflict
	case apperr.CodeAlreadyProcessed:
		return CodeAlreadyProcessed
	case apperr.CodePendingExists:
		return CodePendingExists
	case apperr.CodeDuplicatePriority:
		return CodeDuplicatePriority
	default:
		return CodeInternalError
	}
}

// decodeJSON rejects unknown fields so client typos fail loudly instead
// of silently dropping data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
