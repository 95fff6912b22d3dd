package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/newronx/waitlist/internal/apperror"
	"github.com/newronx/waitlist/internal/model"
	"github.com/newronx/waitlist/internal/repository"
)

// compile-time check that *DB implements repository.RegistrantRepository
var _ repository.RegistrantRepository = (*DB)(nil)

const registrantColumns = `id, email, phone, google_id, google_name, google_picture,
	google_email, source, active, referral_code, referred_by,
	referral_count, referral_rewards, joined_at, updated_at`

// scanRegistrant reads one row into a model.Registrant, folding the nullable
// Google columns into the optional profile struct: google_id NULL means "no
// Google identity", and then Profile stays nil rather than holding an empty
// shell.
func scanRegistrant(row interface{ Scan(...any) error }) (*model.Registrant, error) {
	var (
		r          model.Registrant
		googleID   sql.NullString
		gName      sql.NullString
		gPicture   sql.NullString
		gEmail     sql.NullString
		referredBy sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Email, &r.Phone, &googleID, &gName, &gPicture,
		&gEmail, &r.Source, &r.Active, &r.ReferralCode, &referredBy,
		&r.ReferralCount, &r.ReferralRewards, &r.JoinedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if googleID.Valid {
		r.GoogleID = googleID.String
		r.Profile = &model.GoogleProfile{
			Name:    gName.String,
			Picture: gPicture.String,
			Email:   gEmail.String,
		}
	}
	r.ReferredBy = referredBy.String
	return &r, nil
}

// Create inserts a new registrant.
//
// The caller (the referral ledger) must have assigned ReferralCode already —
// the NOT NULL UNIQUE column makes a code-less registrant unrepresentable,
// which is the "no registrant is ever observable without a code" invariant.
//
// Unique-key violations come back as apperror.Duplicate("email"),
// ("google_id") or ("referral_code"); under concurrent signups for the same
// identity exactly one insert wins and the losers see the typed conflict.
func (db *DB) Create(ctx context.Context, reg *model.Registrant) error {
	now := time.Now().UTC()
	reg.ID = xid.New().String()
	reg.Active = true
	reg.JoinedAt = now
	reg.UpdatedAt = now

	var gName, gPicture, gEmail any
	if reg.Profile != nil {
		gName = reg.Profile.Name
		gPicture = reg.Profile.Picture
		gEmail = reg.Profile.Email
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO registrants (id, email, phone, google_id, google_name,
			google_picture, google_email, source, active, referral_code,
			referred_by, referral_count, referral_rewards, joined_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, NULL, 0, 0, ?, ?)`,
		reg.ID,
		reg.Email,
		reg.Phone,
		nullIfEmpty(reg.GoogleID),
		gName,
		gPicture,
		gEmail,
		string(reg.Source),
		reg.ReferralCode,
		reg.JoinedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		if dup := translateConstraint(err); dup != err {
			return dup
		}
		return fmt.Errorf("sqlite: inserting registrant (email=%s): %w", reg.Email, err)
	}
	return nil
}

// GetByID retrieves a registrant by internal ID. Soft-deleted records are
// still returned — direct lookups see everything, only aggregates filter.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Registrant, error) {
	return db.getBy(ctx, "id", id)
}

// GetByEmail retrieves a registrant by normalized email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.Registrant, error) {
	return db.getBy(ctx, "email", email)
}

// GetByGoogleID retrieves a registrant by linked Google subject ID.
func (db *DB) GetByGoogleID(ctx context.Context, googleID string) (*model.Registrant, error) {
	return db.getBy(ctx, "google_id", googleID)
}

// GetByReferralCode retrieves a registrant owning the given (already
// normalized) referral code.
func (db *DB) GetByReferralCode(ctx context.Context, code string) (*model.Registrant, error) {
	return db.getBy(ctx, "referral_code", code)
}

func (db *DB) getBy(ctx context.Context, column, value string) (*model.Registrant, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+registrantColumns+` FROM registrants WHERE `+column+` = ?`, value)
	reg, err := scanRegistrant(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("registrant", value)
		}
		return nil, fmt.Errorf("sqlite: getting registrant by %s: %w", column, err)
	}
	return reg, nil
}

// UpdatePhone patches the phone number of an active registrant.
// The active guard lives in the WHERE clause: a deactivated record behaves
// exactly like a missing one.
func (db *DB) UpdatePhone(ctx context.Context, id, phone string) (*model.Registrant, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE registrants SET phone = ?, updated_at = ? WHERE id = ? AND active = 1`,
		phone, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating phone for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("registrant", id)
	}
	return db.GetByID(ctx, id)
}

// AttachGoogle links a Google identity onto an existing record (the merge
// case: a manual signup later authenticates via Google) and flips the source.
// A deactivated record is revived by the merge — the OAuth login proves
// control of the email, so it counts as rejoining the waitlist.
// The google_id UNIQUE index still applies, so a race where two records chase
// the same Google account surfaces as apperror.Duplicate("google_id").
func (db *DB) AttachGoogle(ctx context.Context, id, googleID string, profile model.GoogleProfile) (*model.Registrant, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE registrants
		 SET google_id = ?, google_name = ?, google_picture = ?, google_email = ?,
		     source = ?, active = 1, updated_at = ?
		 WHERE id = ?`,
		googleID, profile.Name, profile.Picture, profile.Email,
		string(model.SourceGoogle), time.Now().UTC(), id)
	if err != nil {
		if dup := translateConstraint(err); dup != err {
			return nil, dup
		}
		return nil, fmt.Errorf("sqlite: attaching google identity to %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("registrant", id)
	}
	return db.GetByID(ctx, id)
}

// RefreshProfile overwrites the denormalized Google profile snapshot.
// Called on every Google login for an already-linked record.
func (db *DB) RefreshProfile(ctx context.Context, id string, profile model.GoogleProfile) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE registrants
		 SET google_name = ?, google_picture = ?, google_email = ?, updated_at = ?
		 WHERE id = ?`,
		profile.Name, profile.Picture, profile.Email, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: refreshing profile for %s: %w", id, err)
	}
	return nil
}

// SetReferredBy claims the referred_by slot for a registrant.
//
// The IS NULL guard makes the write first-claim-wins: once a referrer is
// recorded it is never overwritten, and a retry of a partially-failed
// attribution sees ok=false instead of double-attributing.
func (db *DB) SetReferredBy(ctx context.Context, id, referrerID string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE registrants SET referred_by = ?, updated_at = ?
		 WHERE id = ? AND referred_by IS NULL`,
		referrerID, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("sqlite: setting referred_by for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: setting referred_by for %s: %w", id, err)
	}
	return n > 0, nil
}

// IncrementReferral bumps both referral counters by one, in the database, so
// concurrent attributions to the same referrer cannot lose updates.
func (db *DB) IncrementReferral(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE registrants
		 SET referral_count = referral_count + 1,
		     referral_rewards = referral_rewards + 1,
		     updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing referral counters for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("registrant", id)
	}
	return nil
}

// Deactivate soft-deletes a registrant. Idempotent: deactivating an already
// inactive record succeeds quietly; only a missing id is an error.
func (db *DB) Deactivate(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE registrants SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: deactivating registrant %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("registrant", id)
	}
	return nil
}

// List returns active registrants newest-first, with the total count for
// pagination.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Registrant, int, error) {
	where := `WHERE active = 1`
	args := []any{}
	if opts.Source != "" {
		where += ` AND source = ?`
		args = append(args, string(opts.Source))
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrants `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting registrants: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+registrantColumns+` FROM registrants `+where+`
		 ORDER BY joined_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing registrants: %w", err)
	}
	defer rows.Close()

	var regs []model.Registrant
	for rows.Next() {
		reg, err := scanRegistrant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning registrant: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing registrants: %w", err)
	}
	return regs, total, nil
}

// Stats returns the aggregate signup counts, excluding deactivated records.
func (db *DB) Stats(ctx context.Context) (*model.WaitlistStats, error) {
	var s model.WaitlistStats
	sevenDaysAgo := time.Now().UTC().AddDate(0, 0, -7)
	err := db.conn.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN source = 'google' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source = 'manual' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN joined_at >= ? THEN 1 ELSE 0 END), 0)
		 FROM registrants WHERE active = 1`,
		sevenDaysAgo,
	).Scan(&s.Total, &s.Google, &s.Manual, &s.RecentSignups)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing waitlist stats: %w", err)
	}
	return &s, nil
}

// ReferralStats returns the referral-program aggregates and the top-10
// leaderboard, excluding deactivated records.
func (db *DB) ReferralStats(ctx context.Context) (*model.ReferralStats, error) {
	var s model.ReferralStats
	err := db.conn.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN referred_by IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN referral_count > 0 THEN 1 ELSE 0 END), 0)
		 FROM registrants WHERE active = 1`,
	).Scan(&s.TotalReferrals, &s.TotalReferrers)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing referral stats: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT email, referral_code, referral_count, referral_rewards
		 FROM registrants
		 WHERE active = 1 AND referral_count > 0
		 ORDER BY referral_count DESC, joined_at ASC
		 LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying leaderboard: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.Email, &e.ReferralCode, &e.ReferralCount, &e.ReferralRewards); err != nil {
			return nil, fmt.Errorf("sqlite: scanning leaderboard entry: %w", err)
		}
		s.TopReferrers = append(s.TopReferrers, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: querying leaderboard: %w", err)
	}
	return &s, nil
}

// ReferredBy lists the registrants attributed to the given referrer,
// newest-first.
func (db *DB) ReferredBy(ctx context.Context, referrerID string) ([]model.Registrant, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+registrantColumns+` FROM registrants
		 WHERE referred_by = ? ORDER BY joined_at DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing referred registrants: %w", err)
	}
	defer rows.Close()

	var regs []model.Registrant
	for rows.Next() {
		reg, err := scanRegistrant(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning registrant: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: listing referred registrants: %w", err)
	}
	return regs, nil
}
