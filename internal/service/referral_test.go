package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
)

func TestCreateWithCode(t *testing.T) {
	repo := newFakeRepo()
	ledger := NewReferralLedger(repo, testLogger())

	reg := &model.Registrant{Email: "code@example.com", Source: model.SourceManual}
	if err := ledger.CreateWithCode(context.Background(), reg); err != nil {
		t.Fatalf("CreateWithCode() error = %v", err)
	}

	if len(reg.ReferralCode) != 6 {
		t.Errorf("ReferralCode = %q, want 6 characters", reg.ReferralCode)
	}
	if reg.ReferralCode != strings.ToUpper(reg.ReferralCode) {
		t.Errorf("ReferralCode = %q, want uppercase", reg.ReferralCode)
	}
	if reg.ID == "" {
		t.Error("registrant was not persisted")
	}
}

func TestCreateWithCode_RetriesOnCollision(t *testing.T) {
	repo := newFakeRepo()
	repo.createFailures = []error{
		apperror.Duplicate("referral_code"),
		apperror.Duplicate("referral_code"),
	}
	ledger := NewReferralLedger(repo, testLogger())

	reg := &model.Registrant{Email: "retry@example.com", Source: model.SourceManual}
	if err := ledger.CreateWithCode(context.Background(), reg); err != nil {
		t.Fatalf("CreateWithCode() error = %v, want success on third attempt", err)
	}
	if reg.ID == "" {
		t.Error("registrant was not persisted after retries")
	}
}

func TestCreateWithCode_Exhaustion(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < maxCodeAttempts; i++ {
		repo.createFailures = append(repo.createFailures, apperror.Duplicate("referral_code"))
	}
	ledger := NewReferralLedger(repo, testLogger())

	reg := &model.Registrant{Email: "unlucky@example.com", Source: model.SourceManual}
	err := ledger.CreateWithCode(context.Background(), reg)
	if !errors.Is(err, ErrCodeGenerationExhausted) {
		t.Errorf("CreateWithCode() error = %v, want ErrCodeGenerationExhausted", err)
	}
}

func TestCreateWithCode_DoesNotRetryOtherDuplicates(t *testing.T) {
	repo := newFakeRepo()
	repo.createFailures = []error{apperror.Duplicate("email")}
	ledger := NewReferralLedger(repo, testLogger())

	reg := &model.Registrant{Email: "taken@example.com", Source: model.SourceManual}
	err := ledger.CreateWithCode(context.Background(), reg)
	if !apperror.IsDuplicate(err, "email") {
		t.Errorf("CreateWithCode() error = %v, want duplicate email passed through", err)
	}
}

func TestResolveCode(t *testing.T) {
	repo := newFakeRepo()
	ledger := NewReferralLedger(repo, testLogger())
	ctx := context.Background()

	owner := &model.Registrant{Email: "owner@example.com", Source: model.SourceManual}
	if err := ledger.CreateWithCode(ctx, owner); err != nil {
		t.Fatalf("CreateWithCode() error = %v", err)
	}

	// Case-insensitive, whitespace-tolerant.
	got, err := ledger.ResolveCode(ctx, " "+strings.ToLower(owner.ReferralCode)+" ")
	if err != nil {
		t.Fatalf("ResolveCode() error = %v", err)
	}
	if got == nil || got.ID != owner.ID {
		t.Errorf("ResolveCode() = %+v, want owner %s", got, owner.ID)
	}

	// Unknown and empty codes are (nil, nil), not errors.
	for _, code := range []string{"ZZZZZZ", ""} {
		got, err := ledger.ResolveCode(ctx, code)
		if err != nil {
			t.Errorf("ResolveCode(%q) error = %v", code, err)
		}
		if got != nil {
			t.Errorf("ResolveCode(%q) = %+v, want nil", code, got)
		}
	}
}

func TestAttribute(t *testing.T) {
	repo := newFakeRepo()
	ledger := NewReferralLedger(repo, testLogger())
	ctx := context.Background()

	referrer := &model.Registrant{Email: "giver@example.com", Source: model.SourceManual}
	if err := ledger.CreateWithCode(ctx, referrer); err != nil {
		t.Fatalf("CreateWithCode() error = %v", err)
	}
	reg := &model.Registrant{Email: "taker@example.com", Source: model.SourceManual}
	if err := ledger.CreateWithCode(ctx, reg); err != nil {
		t.Fatalf("CreateWithCode() error = %v", err)
	}

	got, err := ledger.Attribute(ctx, reg, referrer.ReferralCode)
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}
	if got == nil || got.ID != referrer.ID {
		t.Fatalf("Attribute() referrer = %+v, want %s", got, referrer.ID)
	}
	if got.ReferralCount != 1 {
		t.Errorf("returned referrer count = %d, want 1", got.ReferralCount)
	}

	stored, _ := repo.GetByID(ctx, referrer.ID)
	if stored.ReferralCount != 1 || stored.ReferralRewards != 1 {
		t.Errorf("stored counters = (%d, %d), want (1, 1)", stored.ReferralCount, stored.ReferralRewards)
	}
	if linked, _ := repo.GetByID(ctx, reg.ID); linked.ReferredBy != referrer.ID {
		t.Errorf("ReferredBy = %q, want %q", linked.ReferredBy, referrer.ID)
	}
}

func TestAttribute_EmptyCodeIsNoop(t *testing.T) {
	ledger := NewReferralLedger(newFakeRepo(), testLogger())

	got, err := ledger.Attribute(context.Background(), &model.Registrant{ID: "reg-1"}, "  ")
	if got != nil || err != nil {
		t.Errorf("Attribute(empty) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestAttribute_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	ledger := NewReferralLedger(repo, testLogger())
	ctx := context.Background()

	referrer := &model.Registrant{Email: "once-giver@example.com", Source: model.SourceManual}
	if err := ledger.CreateWithCode(ctx, referrer); err != nil {
		t.Fatalf("CreateWithCode() error = %v", err)
	}
	reg := &model.Registrant{Email: "once-taker@example.com", Source: model.SourceManual}
	if err := ledger.CreateWithCode(ctx, reg); err != nil {
		t.Fatalf("CreateWithCode() error = %v", err)
	}

	if _, err := ledger.Attribute(ctx, reg, referrer.ReferralCode); err != nil {
		t.Fatalf("first Attribute() error = %v", err)
	}
	got, err := ledger.Attribute(ctx, reg, referrer.ReferralCode)
	if err != nil {
		t.Fatalf("second Attribute() error = %v", err)
	}
	if got != nil {
		t.Errorf("second Attribute() = %+v, want nil", got)
	}

	stored, _ := repo.GetByID(ctx, referrer.ID)
	if stored.ReferralCount != 1 {
		t.Errorf("ReferralCount = %d, want 1 after repeat attribution", stored.ReferralCount)
	}
}
