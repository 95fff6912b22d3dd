package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/auth"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/referral"
	"github.com/newronx/waitlist/internal/repository"
)

// Notifier sends the post-signup welcome mail. It is fire-and-forget from
// the resolver's perspective: failures are logged and never fail or roll
// back a signup.
type Notifier interface {
	SendWelcome(ctx context.Context, reg *model.Registrant) error
}

// SignupService is the identity resolver: it maps one signup event (manual
// form or Google login) onto exactly one canonical registrant, merging
// partial identities, then hands off to the referral ledger for attribution.
type SignupService struct {
	regs     repository.RegistrantRepository
	ledger   *ReferralLedger
	notifier Notifier
	logger   *slog.Logger
}

func NewSignupService(
	regs repository.RegistrantRepository,
	ledger *ReferralLedger,
	notifier Notifier,
	logger *slog.Logger,
) *SignupService {
	return &SignupService{
		regs:     regs,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
	}
}

// SignupResult bundles the outcome of one signup event. Identity creation
// and referral attribution are independent outcomes: Registrant is always
// set on success, while the referral portion is either a referrer, nothing
// (no code / defined no-op), or a rejection in ReferralErr.
type SignupResult struct {
	Registrant *model.Registrant
	Referrer   *model.Registrant
	ReferralErr error
}

// AlreadyRegisteredError is returned when a manual signup hits an existing
// email. It carries the existing record so the caller can return its public
// summary; nothing was mutated.
type AlreadyRegisteredError struct {
	Existing *model.Registrant
}

func (e *AlreadyRegisteredError) Error() string {
	return "email already exists in waitlist"
}

func (e *AlreadyRegisteredError) Unwrap() error {
	return apperror.ErrConflict
}

// ManualSignup handles a manual-form signup event.
//
// The manual path never overwrites an existing identity: a resubmitted email
// is AlreadyRegisteredError, full stop. (The Google path may enrich an
// existing record, because an OAuth login proves control of the email; a
// bare form post proves nothing.)
func (s *SignupService) ManualSignup(ctx context.Context, email, phone, referralCode string) (*SignupResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validateReferralFormat(referralCode); err != nil {
		return nil, err
	}

	if existing, err := s.regs.GetByEmail(ctx, email); err == nil {
		return nil, &AlreadyRegisteredError{Existing: existing}
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/signup: checking email %s: %w", email, err)
	}

	reg := &model.Registrant{
		Email:  email,
		Phone:  strings.TrimSpace(phone),
		Source: model.SourceManual,
	}
	if err := s.ledger.CreateWithCode(ctx, reg); err != nil {
		// A concurrent signup for the same email won the insert between our
		// lookup and the create. No retry: the loser reports the duplicate.
		if apperror.IsDuplicate(err, "email") {
			existing, lookupErr := s.regs.GetByEmail(ctx, email)
			if lookupErr != nil {
				return nil, fmt.Errorf("service/signup: re-reading after duplicate email: %w", lookupErr)
			}
			return nil, &AlreadyRegisteredError{Existing: existing}
		}
		return nil, fmt.Errorf("service/signup: creating registrant: %w", err)
	}

	s.logger.Info("registrant created",
		slog.String("registrantID", reg.ID),
		slog.String("source", string(reg.Source)),
	)

	result := &SignupResult{Registrant: reg}
	result.Referrer, result.ReferralErr = s.ledger.Attribute(ctx, reg, referralCode)
	if result.ReferralErr != nil {
		s.logger.Warn("referral attribution rejected",
			slog.String("registrantID", reg.ID),
			slog.String("error", result.ReferralErr.Error()),
		)
	}

	s.sendWelcome(ctx, reg)
	return result, nil
}

// GoogleLogin handles a Google OAuth callback event.
//
// Resolution order, first match wins:
//
//  1. A registrant already linked to this Google ID — refresh the profile
//     snapshot and return it.
//  2. A registrant with the provider email (created manually) — attach the
//     Google identity to it and flip its source (the merge case).
//  3. Nobody — create a new registrant with source google and no phone.
//
// Races with a concurrent login for the same account are recovered locally:
// on a duplicate-create collision the resolution is re-run once, and the
// second pass lands in branch 1 or 2. The raw duplicate never reaches the
// caller.
func (s *SignupService) GoogleLogin(ctx context.Context, gu *auth.GoogleUser, referralCode string) (*SignupResult, error) {
	if gu == nil {
		return nil, fmt.Errorf("service/signup: google user must not be nil")
	}
	email, err := normalizeEmail(gu.Email)
	if err != nil {
		return nil, err
	}
	if err := validateReferralFormat(referralCode); err != nil {
		return nil, err
	}

	reg, err := s.resolveGoogle(ctx, gu, email, true)
	if err != nil {
		return nil, err
	}

	result := &SignupResult{Registrant: reg}
	result.Referrer, result.ReferralErr = s.ledger.Attribute(ctx, reg, referralCode)
	if result.ReferralErr != nil {
		s.logger.Warn("referral attribution rejected",
			slog.String("registrantID", reg.ID),
			slog.String("error", result.ReferralErr.Error()),
		)
	}

	s.sendWelcome(ctx, reg)
	return result, nil
}

// resolveGoogle implements the three-branch resolution. retry guards the
// single re-resolution pass after a create collision.
func (s *SignupService) resolveGoogle(ctx context.Context, gu *auth.GoogleUser, email string, retry bool) (*model.Registrant, error) {
	profile := model.GoogleProfile{
		Name:    gu.Name,
		Picture: gu.Picture,
		Email:   gu.Email,
	}

	// Branch 1: already linked to this Google account.
	reg, err := s.regs.GetByGoogleID(ctx, gu.ID)
	if err == nil {
		if err := s.regs.RefreshProfile(ctx, reg.ID, profile); err != nil {
			return nil, fmt.Errorf("service/signup: refreshing profile: %w", err)
		}
		reg.Profile = &profile
		s.logger.Info("returning google registrant",
			slog.String("registrantID", reg.ID),
		)
		return reg, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/signup: looking up google id: %w", err)
	}

	// Branch 2: email known from a manual signup — merge.
	existing, err := s.regs.GetByEmail(ctx, email)
	if err == nil {
		merged, err := s.regs.AttachGoogle(ctx, existing.ID, gu.ID, profile)
		if err != nil {
			if apperror.IsDuplicate(err, "google_id") && retry {
				return s.resolveGoogle(ctx, gu, email, false)
			}
			return nil, fmt.Errorf("service/signup: attaching google identity: %w", err)
		}
		s.logger.Info("merged google identity into existing registrant",
			slog.String("registrantID", merged.ID),
		)
		return merged, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/signup: looking up email: %w", err)
	}

	// Branch 3: brand new registrant.
	reg = &model.Registrant{
		Email:    email,
		GoogleID: gu.ID,
		Profile:  &profile,
		Source:   model.SourceGoogle,
	}
	if err := s.ledger.CreateWithCode(ctx, reg); err != nil {
		if (apperror.IsDuplicate(err, "google_id") || apperror.IsDuplicate(err, "email")) && retry {
			return s.resolveGoogle(ctx, gu, email, false)
		}
		return nil, fmt.Errorf("service/signup: creating google registrant: %w", err)
	}
	s.logger.Info("registrant created",
		slog.String("registrantID", reg.ID),
		slog.String("source", string(reg.Source)),
	)
	return reg, nil
}

// sendWelcome fires the welcome mail and swallows any failure.
func (s *SignupService) sendWelcome(ctx context.Context, reg *model.Registrant) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendWelcome(ctx, reg); err != nil {
		s.logger.Error("welcome email failed",
			slog.String("registrantID", reg.ID),
			slog.String("error", err.Error()),
		)
	}
}

// validateReferralFormat rejects a malformed referral code before anything
// is written: a bad format fails the whole signup event, no mutation occurs.
// An unknown but well-formed code is judged later, after the registrant
// exists, and rejects only the referral portion.
func validateReferralFormat(code string) error {
	code = referral.Normalize(code)
	if code == "" || referral.ValidFormat(code) {
		return nil
	}
	return apperror.ValidationFailed("referralCode",
		"referral code must be 6 characters, letters and digits only")
}

// normalizeEmail lower-cases and trims, then checks the shape. The check is
// deliberately loose — RFC-complete validation rejects real addresses, so we
// require only an addr-spec net/mail accepts with a dotted domain.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "please provide a valid email address")
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 || !strings.Contains(email[at+1:], ".") {
		return "", apperror.ValidationFailed("email", "please provide a valid email address")
	}
	return email, nil
}
