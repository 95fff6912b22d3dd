package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/repository"
)

// WaitlistService is the read-and-maintenance side of the waitlist: lookups,
// aggregates, phone updates, soft deletion, and stories. It never creates
// registrants (that is the resolver's job) and never touches referral
// counters (the ledger's job).
type WaitlistService struct {
	regs    repository.RegistrantRepository
	stories repository.StoryRepository
	ledger  *ReferralLedger
	logger  *slog.Logger
}

func NewWaitlistService(
	regs repository.RegistrantRepository,
	stories repository.StoryRepository,
	ledger *ReferralLedger,
	logger *slog.Logger,
) *WaitlistService {
	return &WaitlistService{
		regs:    regs,
		stories: stories,
		ledger:  ledger,
		logger:  logger,
	}
}

// GetByID returns the registrant with the given id, deactivated or not.
func (s *WaitlistService) GetByID(ctx context.Context, id string) (*model.Registrant, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "registrant id is required")
	}
	return s.regs.GetByID(ctx, id)
}

// GetByEmail returns the registrant with the given email (existence check).
func (s *WaitlistService) GetByEmail(ctx context.Context, email string) (*model.Registrant, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.regs.GetByEmail(ctx, email)
}

// UpdatePhone sets the phone of an active registrant, addressed by id.
// This is how Google-created accounts supply a phone after the fact.
func (s *WaitlistService) UpdatePhone(ctx context.Context, id, phone string) (*model.Registrant, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "registrant id is required")
	}
	return s.regs.UpdatePhone(ctx, id, strings.TrimSpace(phone))
}

// UpdatePhoneByEmail is the email-addressed variant of UpdatePhone.
func (s *WaitlistService) UpdatePhoneByEmail(ctx context.Context, email, phone string) (*model.Registrant, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	reg, err := s.regs.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.regs.UpdatePhone(ctx, reg.ID, strings.TrimSpace(phone))
}

// Deactivate soft-deletes a registrant. The record stays resolvable by id
// but disappears from counts and listings.
func (s *WaitlistService) Deactivate(ctx context.Context, id string) error {
	if id == "" {
		return apperror.ValidationFailed("id", "registrant id is required")
	}
	if err := s.regs.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("registrant deactivated", slog.String("registrantID", id))
	return nil
}

// List returns active registrants with pagination.
func (s *WaitlistService) List(ctx context.Context, opts repository.ListOptions) ([]model.Registrant, int, error) {
	return s.regs.List(ctx, opts)
}

// Stats returns the aggregate signup counts.
func (s *WaitlistService) Stats(ctx context.Context) (*model.WaitlistStats, error) {
	return s.regs.Stats(ctx)
}

// ReferralStats returns the referral-program aggregates and leaderboard.
func (s *WaitlistService) ReferralStats(ctx context.Context) (*model.ReferralStats, error) {
	return s.regs.ReferralStats(ctx)
}

// ReferredBy lists the registrants attributed to a referrer.
func (s *WaitlistService) ReferredBy(ctx context.Context, referrerID string) ([]model.Registrant, error) {
	if referrerID == "" {
		return nil, apperror.ValidationFailed("id", "referrer id is required")
	}
	return s.regs.ReferredBy(ctx, referrerID)
}

// ReferralCodeOf returns a registrant's own code and counters, addressed by
// email (the share-your-code widget).
func (s *WaitlistService) ReferralCodeOf(ctx context.Context, email string) (*model.Registrant, error) {
	return s.GetByEmail(ctx, email)
}

// ValidateCode resolves a referral code to its owner's public summary.
// An unknown code is apperror.ErrInvalidReferral.
func (s *WaitlistService) ValidateCode(ctx context.Context, code string) (*model.Summary, error) {
	owner, err := s.ledger.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, apperror.InvalidReferralCode(code)
	}
	summary := owner.Summarize()
	return &summary, nil
}

// SubmitStory records a free-text testimonial, best-effort linked to an
// existing registrant by email. Stories start pending and are published only
// once approved.
func (s *WaitlistService) SubmitStory(ctx context.Context, email, name, text string) (*model.Story, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("story", "story is required")
	}

	story := &model.Story{
		Name:  strings.TrimSpace(name),
		Story: text,
	}

	if strings.TrimSpace(email) != "" {
		normalized, err := normalizeEmail(email)
		if err != nil {
			return nil, err
		}
		story.Email = normalized
		if reg, err := s.regs.GetByEmail(ctx, normalized); err == nil {
			story.RegistrantID = reg.ID
			story.Source = reg.Source
			if story.Name == "" {
				story.Name = reg.DisplayName()
			}
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/waitlist: linking story: %w", err)
		}
	}

	if err := s.stories.CreateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("service/waitlist: saving story: %w", err)
	}
	s.logger.Info("story submitted",
		slog.String("storyID", story.ID),
		slog.Bool("linked", story.RegistrantID != ""),
	)
	return story, nil
}

// ModerateStory moves a story to approved or rejected.
func (s *WaitlistService) ModerateStory(ctx context.Context, id string, status model.StoryStatus) (*model.Story, error) {
	switch status {
	case model.StoryApproved, model.StoryRejected, model.StoryPending:
	default:
		return nil, apperror.ValidationFailed("status", "status must be pending, approved or rejected")
	}
	return s.stories.UpdateStoryStatus(ctx, id, status)
}

// ListStories returns stories, optionally filtered by moderation status.
func (s *WaitlistService) ListStories(ctx context.Context, status model.StoryStatus, limit, offset int) ([]model.Story, error) {
	return s.stories.ListStories(ctx, status, limit, offset)
}
