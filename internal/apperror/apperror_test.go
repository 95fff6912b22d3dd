package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("registrant", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("email", "email is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Duplicate wraps ErrConflict",
			err:       Duplicate("email"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "InvalidReferralCode wraps ErrInvalidReferral",
			err:       InvalidReferralCode("ZZZZZZ"),
			target:    ErrInvalidReferral,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("registrant", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "InvalidReferralCode does NOT match ErrConflict",
			err:       InvalidReferralCode("ZZZZZZ"),
			target:    ErrConflict,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("registrant", "abc123"),
			wantMessage: "registrant not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("email", "email is required"),
			wantMessage: "email is required",
		},
		{
			name:        "Duplicate message names the key",
			err:         Duplicate("google_id"),
			wantMessage: "duplicate value for google_id",
		},
		{
			name:        "InvalidReferralCode message includes the code",
			err:         InvalidReferralCode("AB12C3"),
			wantMessage: `referral code "AB12C3" does not exist`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("registrant", "abc123")
	if err.Unwrap() != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrNotFound)
	}
}

func TestIsDuplicate(t *testing.T) {
	emailDup := Duplicate("email")

	if !IsDuplicate(emailDup, "email") {
		t.Error("IsDuplicate(Duplicate(email), email) = false, want true")
	}
	if IsDuplicate(emailDup, "referral_code") {
		t.Error("IsDuplicate(Duplicate(email), referral_code) = true, want false")
	}
	if IsDuplicate(NotFound("registrant", "x"), "email") {
		t.Error("IsDuplicate(NotFound, email) = true, want false")
	}

	// Wrapped duplicates must still be detected — services add context with %w.
	wrapped := fmt.Errorf("creating registrant: %w", Duplicate("referral_code"))
	if !IsDuplicate(wrapped, "referral_code") {
		t.Error("IsDuplicate should see through fmt.Errorf wrapping")
	}
}
