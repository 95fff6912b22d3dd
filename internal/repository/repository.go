// Package repository declares the persistence interfaces consumed by the
// service layer. The SQLite implementation lives in repository/sqlite; tests
// substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/newronx/waitlist/internal/model"
)

// ListOptions controls pagination and filtering for registrant listings.
type ListOptions struct {
	Limit  int
	Offset int
	Source model.Source // empty = all sources
}

// RegistrantRepository is durable CRUD over registrant records.
//
// Uniqueness (one record per normalized email, per google_id when present,
// per referral code) is enforced by the store's constraint checks, not by
// application-level locking: Create fails with apperror.Duplicate naming the
// offending key, and concurrent writers serialize on the insert.
//
// Point lookups (GetBy*) return soft-deleted records too; aggregates and
// listings exclude them. Lookup misses are apperror.ErrNotFound.
type RegistrantRepository interface {
	Create(ctx context.Context, reg *model.Registrant) error
	GetByID(ctx context.Context, id string) (*model.Registrant, error)
	GetByEmail(ctx context.Context, email string) (*model.Registrant, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.Registrant, error)
	GetByReferralCode(ctx context.Context, code string) (*model.Registrant, error)

	// UpdatePhone patches the phone of an active registrant.
	// Deactivated or missing records are apperror.ErrNotFound.
	UpdatePhone(ctx context.Context, id, phone string) (*model.Registrant, error)

	// AttachGoogle links a Google identity onto an existing (manual) record
	// and flips its source to google; a deactivated record is revived by the
	// merge. Fails with apperror.Duplicate if the google_id is already
	// linked elsewhere.
	AttachGoogle(ctx context.Context, id, googleID string, profile model.GoogleProfile) (*model.Registrant, error)

	// RefreshProfile overwrites the denormalized Google profile snapshot.
	RefreshProfile(ctx context.Context, id string, profile model.GoogleProfile) error

	// SetReferredBy claims the referred_by slot, first writer wins.
	// Returns false (no error) when the slot was already taken.
	SetReferredBy(ctx context.Context, id, referrerID string) (bool, error)

	// IncrementReferral bumps referral_count and referral_rewards by one.
	IncrementReferral(ctx context.Context, id string) error

	// Deactivate soft-deletes; idempotent, missing id is ErrNotFound.
	Deactivate(ctx context.Context, id string) error

	List(ctx context.Context, opts ListOptions) ([]model.Registrant, int, error)
	Stats(ctx context.Context) (*model.WaitlistStats, error)
	ReferralStats(ctx context.Context) (*model.ReferralStats, error)
	ReferredBy(ctx context.Context, referrerID string) ([]model.Registrant, error)
}

// StoryRepository persists free-text testimonials.
type StoryRepository interface {
	CreateStory(ctx context.Context, story *model.Story) error
	GetStoryByID(ctx context.Context, id string) (*model.Story, error)
	UpdateStoryStatus(ctx context.Context, id string, status model.StoryStatus) (*model.Story, error)
	ListStories(ctx context.Context, status model.StoryStatus, limit, offset int) ([]model.Story, error)
}
