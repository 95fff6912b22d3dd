// Package apperror defines the application's error taxonomy.
//
// Services return these typed errors; the HTTP layer maps them to status
// codes in exactly one place (handler/response.go). Store-level constraint
// violations are recoverable signals, not crashes — every one of them has a
// defined resolver branch, so callers match on the sentinels below with
// errors.Is and on *AppError with errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrInvalidReferral = errors.New("invalid referral code")
)

type AppError struct {
	Err     error  // sentinel this error belongs to
	Message string // human-readable error message
	Field   string // optional: field or unique key causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Duplicate reports a unique-constraint violation on the named key
// ("email", "google_id" or "referral_code"). The identity resolver branches
// on the field to decide whether the violation is a user-facing duplicate, a
// race to recover from, or a code collision to retry.
func Duplicate(field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("duplicate value for %s", field),
		Field:   field,
	}
}

// IsDuplicate reports whether err is a unique-constraint violation on the
// named key.
func IsDuplicate(err error, field string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && errors.Is(appErr.Err, ErrConflict) && appErr.Field == field
}

// InvalidReferralCode reports a referral code that resolves to no registrant.
// It rejects the referral portion of a signup only — the signup itself is an
// independent outcome and may still succeed.
func InvalidReferralCode(code string) *AppError {
	return &AppError{
		Err:     ErrInvalidReferral,
		Message: fmt.Sprintf("referral code %q does not exist", code),
		Field:   "referralCode",
	}
}
