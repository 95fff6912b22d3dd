// Package service holds the business logic between the HTTP handlers and the
// repositories: the identity resolver (signup.go), the referral ledger
// (referral.go), and the read-side waitlist queries (waitlist.go).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/referral"
	"github.com/newronx/waitlist/internal/repository"
)

// maxCodeAttempts bounds the generate-insert-retry loop. With a 36^6 code
// space, five straight collisions means the table is essentially full or the
// generator is broken — either way a configuration/capacity problem, not a
// user error.
const maxCodeAttempts = 5

// ErrCodeGenerationExhausted is returned when every generation attempt
// collided with an existing code. No registrant row exists when this is
// returned — the failed inserts never became visible.
var ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")

// ReferralLedger owns referral codes and attribution: it is the only writer
// of referral_count/referral_rewards, and the only component that assigns
// codes.
type ReferralLedger struct {
	regs   repository.RegistrantRepository
	logger *slog.Logger
}

func NewReferralLedger(regs repository.RegistrantRepository, logger *slog.Logger) *ReferralLedger {
	return &ReferralLedger{regs: regs, logger: logger}
}

// CreateWithCode assigns a fresh unique referral code to the candidate and
// persists it: generate a code, attempt the insert, and regenerate if the
// store rejects the code as a duplicate.
//
// The code is attached before the insert, so the row is never visible
// without one. Collisions on OTHER unique keys (email, google_id) are not
// retried here — those mean the identity already exists and the resolver
// owns that decision.
func (l *ReferralLedger) CreateWithCode(ctx context.Context, reg *model.Registrant) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		reg.ReferralCode = referral.NewCode()
		err := l.regs.Create(ctx, reg)
		if err == nil {
			return nil
		}
		if apperror.IsDuplicate(err, "referral_code") {
			l.logger.Warn("referral code collision, regenerating",
				slog.String("code", reg.ReferralCode),
				slog.Int("attempt", attempt),
			)
			continue
		}
		return err
	}
	return fmt.Errorf("service/referral: %d attempts: %w", maxCodeAttempts, ErrCodeGenerationExhausted)
}

// ResolveCode looks up the registrant owning a referral code. Matching is
// case-insensitive; an unknown code yields (nil, nil), not an error.
func (l *ReferralLedger) ResolveCode(ctx context.Context, code string) (*model.Registrant, error) {
	code = referral.Normalize(code)
	if code == "" {
		return nil, nil
	}
	owner, err := l.regs.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/referral: resolving code %s: %w", code, err)
	}
	return owner, nil
}

// Attribute links a newly resolved registrant to the owner of code and
// increments the owner's counters. Returns the referrer on success, or
// (nil, nil) for the defined no-ops:
//
//   - empty code: the signup simply had no referral
//   - self-referral: the code resolves to the registrant itself
//   - already attributed: referredBy is set at most once; callers may retry
//     safely
//
// An unknown code is apperror.ErrInvalidReferral and rejects only the
// referral portion — the caller's signup stands. A malformed code is
// apperror.ErrValidation; the resolver rejects those before creating any
// record, so a well-behaved caller never reaches this with one.
//
// CONSISTENCY TRADEOFF:
// The attribution touches two records with two separate writes, not one
// transaction (the original system had none either, and the behavior is kept
// deliberately). referred_by is claimed first under a first-writer-wins
// guard, counters second. A crash between the writes therefore loses at most
// one counter increment; it can never double-attribute, because a retry
// finds referred_by already set and stops. We accept the rare missing
// increment over the reverse failure mode.
func (l *ReferralLedger) Attribute(ctx context.Context, reg *model.Registrant, code string) (*model.Registrant, error) {
	code = referral.Normalize(code)
	if code == "" {
		return nil, nil
	}
	if !referral.ValidFormat(code) {
		return nil, apperror.ValidationFailed("referralCode",
			"referral code must be 6 characters, letters and digits only")
	}

	referrer, err := l.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, apperror.InvalidReferralCode(code)
	}
	if referrer.ID == reg.ID {
		l.logger.Info("self-referral ignored", slog.String("registrantID", reg.ID))
		return nil, nil
	}
	if reg.ReferredBy != "" {
		return nil, nil
	}

	claimed, err := l.regs.SetReferredBy(ctx, reg.ID, referrer.ID)
	if err != nil {
		return nil, fmt.Errorf("service/referral: claiming referred_by for %s: %w", reg.ID, err)
	}
	if !claimed {
		// Someone (or an earlier retry) got there first; the counter side
		// was either done then or lost to the window described above.
		return nil, nil
	}
	reg.ReferredBy = referrer.ID

	if err := l.regs.IncrementReferral(ctx, referrer.ID); err != nil {
		// referred_by is committed but the counters are not. Surfacing the
		// error would suggest the attribution failed when it half-happened;
		// we log loudly instead and leave the link in place.
		l.logger.Error("referral counters not incremented after link",
			slog.String("referrerID", referrer.ID),
			slog.String("registrantID", reg.ID),
			slog.String("error", err.Error()),
		)
		return referrer, nil
	}
	referrer.ReferralCount++
	referrer.ReferralRewards++

	l.logger.Info("referral attributed",
		slog.String("referrerID", referrer.ID),
		slog.String("registrantID", reg.ID),
		slog.String("code", code),
	)
	return referrer, nil
}
