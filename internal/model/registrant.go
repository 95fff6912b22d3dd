// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Source records how a registrant currently authenticates.
//
// A record created by the manual form starts as SourceManual. If the same
// person later signs in with Google, the Google identity is attached to the
// existing record and the source flips to SourceGoogle (last writer wins).
type Source string

const (
	SourceManual Source = "manual"
	SourceGoogle Source = "google"
)

// GoogleProfile is the denormalized snapshot of a linked Google identity.
// It is refreshed on every Google login, so it can drift from the canonical
// Email field if the user changes their Google account details.
//
// The struct is always attached as a pointer: nil means "no Google identity
// linked", a non-nil value means GoogleID is set too. Individual fields are
// plain strings — Google may omit any of them, and an empty string is a
// perfectly serviceable zero value.
type GoogleProfile struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
}

// Registrant is the canonical identity record: one row per unique person on
// the waitlist, keyed by normalized email, optionally linked to a Google
// account.
//
// WHY GoogleID string (not int64)?
// Google subject IDs are decimal strings in the userinfo response and are
// documented as opaque. We keep them opaque. The empty string means "not
// linked"; the DB stores NULL in that case so the UNIQUE index stays sparse.
//
// ReferralCode is assigned before the row is inserted — no registrant is
// ever observable without one. ReferredBy is set at most once and never
// overwritten; the counters only move through the referral ledger.
type Registrant struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone,omitempty"`
	GoogleID        string         `json:"googleId,omitempty"`
	Profile         *GoogleProfile `json:"googleProfile,omitempty"`
	Source          Source         `json:"source"`
	Active          bool           `json:"active"`
	ReferralCode    string         `json:"referralCode"`
	ReferredBy      string         `json:"referredBy,omitempty"`
	ReferralCount   int            `json:"referralCount"`
	ReferralRewards int            `json:"referralRewards"`
	JoinedAt        time.Time      `json:"joinedAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// DisplayName returns the best human-readable name we have for a registrant:
// the Google profile name when linked, otherwise the local part of the email.
func (r *Registrant) DisplayName() string {
	if r.Profile != nil && r.Profile.Name != "" {
		return r.Profile.Name
	}
	if at := strings.IndexByte(r.Email, '@'); at > 0 {
		return r.Email[:at]
	}
	return r.Email
}

// Summary is the public projection of a registrant, safe to return to
// unauthenticated callers (duplicate-signup responses, referral validation).
type Summary struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Source   Source    `json:"source"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Summarize builds the public projection.
func (r *Registrant) Summarize() Summary {
	return Summary{
		ID:       r.ID,
		Email:    r.Email,
		Name:     r.DisplayName(),
		Source:   r.Source,
		JoinedAt: r.JoinedAt,
	}
}

// WaitlistStats are the aggregate counts exposed by the stats endpoint.
// All counts exclude deactivated registrants.
type WaitlistStats struct {
	Total         int `json:"total"`
	Google        int `json:"google"`
	Manual        int `json:"manual"`
	RecentSignups int `json:"recentSignups"` // joined within the last 7 days
}

// LeaderboardEntry is one row of the referral leaderboard.
type LeaderboardEntry struct {
	Email           string `json:"email"`
	ReferralCode    string `json:"referralCode"`
	ReferralCount   int    `json:"referralCount"`
	ReferralRewards int    `json:"referralRewards"`
}

// ReferralStats are the aggregate referral-program counts.
type ReferralStats struct {
	TotalReferrals int                `json:"totalReferrals"` // registrants with a referrer
	TotalReferrers int                `json:"totalReferrers"` // registrants with count > 0
	TopReferrers   []LeaderboardEntry `json:"topReferrers"`
}
