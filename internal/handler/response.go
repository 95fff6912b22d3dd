package handler

// Response helpers: every handler sends JSON through writeJSON and maps
// domain errors through writeError, so the whole API has one error shape:
//
//	{"error": "not_found", "message": "registrant not found with id abc123"}
//
// The service layer knows nothing about HTTP status codes; this file is the
// single place where apperror sentinels become 400/404/409/...

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/newronx/waitlist/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`             // machine-readable type, e.g. "not_found"
	Message string `json:"message"`           // human-readable description
	Field   string `json:"field,omitempty"`   // offending field, when known
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must go out before the body — once Encode writes, they are locked.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status and sends
// it. errors.Is walks the wrap chain, so services are free to add context
// with fmt.Errorf("...: %w", err).
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrInvalidReferral):
			status = http.StatusBadRequest
			errorType = "invalid_referral_code"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Unknown error — generic 500. The raw message may contain SQL or file
	// paths, so it never reaches the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// referralOutcome is the referral portion of a signup response. Identity
// creation and attribution are independent outcomes, so a rejected code
// still accompanies a 201.
type referralOutcome struct {
	Applied  bool             `json:"applied"`
	Referrer *referrerPayload `json:"referrer,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type referrerPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
