package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/repository"
)

// fakeRegistrantRepo is an in-memory RegistrantRepository with the same
// uniqueness semantics as the SQLite implementation: Create rejects
// duplicate emails, google IDs and referral codes with apperror.Duplicate.
//
// createFailures lets a test inject errors for the next Create calls, in
// order, to exercise the code-collision retry loop.
//
// onCreate and onAttachGoogle are one-shot hooks that run (under the lock)
// before the next Create/AttachGoogle proceeds. A hook simulates a lost race
// by inserting the winning record via put and returning the duplicate error
// the store would have raised.
type fakeRegistrantRepo struct {
	mu             sync.Mutex
	seq            int
	regs           map[string]*model.Registrant
	createFailures []error
	onCreate       func() error
	onAttachGoogle func() error
}

func newFakeRepo() *fakeRegistrantRepo {
	return &fakeRegistrantRepo{regs: make(map[string]*model.Registrant)}
}

// put stores a registrant directly, bypassing Create. Only for use inside
// race hooks, which already hold the lock.
func (f *fakeRegistrantRepo) put(reg *model.Registrant) {
	f.seq++
	if reg.ID == "" {
		reg.ID = fmt.Sprintf("reg-%d", f.seq)
	}
	now := time.Now().UTC()
	reg.Active = true
	reg.JoinedAt = now
	reg.UpdatedAt = now
	stored := *reg
	f.regs[reg.ID] = &stored
}

func (f *fakeRegistrantRepo) Create(_ context.Context, reg *model.Registrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onCreate != nil {
		hook := f.onCreate
		f.onCreate = nil
		if err := hook(); err != nil {
			return err
		}
	}

	if len(f.createFailures) > 0 {
		err := f.createFailures[0]
		f.createFailures = f.createFailures[1:]
		if err != nil {
			return err
		}
	}

	for _, r := range f.regs {
		if r.Email == reg.Email {
			return apperror.Duplicate("email")
		}
		if reg.GoogleID != "" && r.GoogleID == reg.GoogleID {
			return apperror.Duplicate("google_id")
		}
		if r.ReferralCode == reg.ReferralCode {
			return apperror.Duplicate("referral_code")
		}
	}

	f.seq++
	now := time.Now().UTC()
	reg.ID = fmt.Sprintf("reg-%d", f.seq)
	reg.Active = true
	reg.JoinedAt = now
	reg.UpdatedAt = now

	stored := *reg
	f.regs[reg.ID] = &stored
	return nil
}

func (f *fakeRegistrantRepo) find(match func(*model.Registrant) bool) (*model.Registrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.regs {
		if match(r) {
			copied := *r
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("registrant", "?")
}

func (f *fakeRegistrantRepo) GetByID(_ context.Context, id string) (*model.Registrant, error) {
	return f.find(func(r *model.Registrant) bool { return r.ID == id })
}

func (f *fakeRegistrantRepo) GetByEmail(_ context.Context, email string) (*model.Registrant, error) {
	return f.find(func(r *model.Registrant) bool { return r.Email == email })
}

func (f *fakeRegistrantRepo) GetByGoogleID(_ context.Context, googleID string) (*model.Registrant, error) {
	return f.find(func(r *model.Registrant) bool { return r.GoogleID == googleID })
}

func (f *fakeRegistrantRepo) GetByReferralCode(_ context.Context, code string) (*model.Registrant, error) {
	return f.find(func(r *model.Registrant) bool { return r.ReferralCode == code })
}

func (f *fakeRegistrantRepo) UpdatePhone(_ context.Context, id, phone string) (*model.Registrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regs[id]
	if !ok || !r.Active {
		return nil, apperror.NotFound("registrant", id)
	}
	r.Phone = phone
	copied := *r
	return &copied, nil
}

func (f *fakeRegistrantRepo) AttachGoogle(_ context.Context, id, googleID string, profile model.GoogleProfile) (*model.Registrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onAttachGoogle != nil {
		hook := f.onAttachGoogle
		f.onAttachGoogle = nil
		if err := hook(); err != nil {
			return nil, err
		}
	}
	for _, r := range f.regs {
		if r.GoogleID == googleID && r.ID != id {
			return nil, apperror.Duplicate("google_id")
		}
	}
	r, ok := f.regs[id]
	if !ok {
		return nil, apperror.NotFound("registrant", id)
	}
	r.GoogleID = googleID
	p := profile
	r.Profile = &p
	r.Source = model.SourceGoogle
	r.Active = true
	copied := *r
	return &copied, nil
}

func (f *fakeRegistrantRepo) RefreshProfile(_ context.Context, id string, profile model.GoogleProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regs[id]
	if !ok {
		return apperror.NotFound("registrant", id)
	}
	p := profile
	r.Profile = &p
	return nil
}

func (f *fakeRegistrantRepo) SetReferredBy(_ context.Context, id, referrerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regs[id]
	if !ok {
		return false, apperror.NotFound("registrant", id)
	}
	if r.ReferredBy != "" {
		return false, nil
	}
	r.ReferredBy = referrerID
	return true, nil
}

func (f *fakeRegistrantRepo) IncrementReferral(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regs[id]
	if !ok {
		return apperror.NotFound("registrant", id)
	}
	r.ReferralCount++
	r.ReferralRewards++
	return nil
}

func (f *fakeRegistrantRepo) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regs[id]
	if !ok {
		return apperror.NotFound("registrant", id)
	}
	r.Active = false
	return nil
}

func (f *fakeRegistrantRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Registrant, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registrant
	for _, r := range f.regs {
		if !r.Active {
			continue
		}
		if opts.Source != "" && r.Source != opts.Source {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeRegistrantRepo) Stats(context.Context) (*model.WaitlistStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s model.WaitlistStats
	for _, r := range f.regs {
		if !r.Active {
			continue
		}
		s.Total++
		switch r.Source {
		case model.SourceGoogle:
			s.Google++
		case model.SourceManual:
			s.Manual++
		}
	}
	return &s, nil
}

func (f *fakeRegistrantRepo) ReferralStats(context.Context) (*model.ReferralStats, error) {
	return &model.ReferralStats{}, nil
}

func (f *fakeRegistrantRepo) ReferredBy(_ context.Context, referrerID string) ([]model.Registrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registrant
	for _, r := range f.regs {
		if r.ReferredBy == referrerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

var _ repository.RegistrantRepository = (*fakeRegistrantRepo)(nil)

// fakeNotifier records welcome-mail sends; err, when set, is returned from
// every send.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	err   error
}

func (n *fakeNotifier) SendWelcome(_ context.Context, reg *model.Registrant) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, reg.Email)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
