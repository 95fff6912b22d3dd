package model

import "time"

// StoryStatus is the moderation state of a submitted story.
type StoryStatus string

const (
	StoryPending  StoryStatus = "pending"
	StoryApproved StoryStatus = "approved"
	StoryRejected StoryStatus = "rejected"
)

// Story is a free-text testimonial, loosely associated with a registrant.
//
// The association is best-effort: a submitter may give an email that matches
// a waitlist record (RegistrantID gets set), an email we have never seen
// (only Email is kept), or nothing at all. Stories start in StoryPending and
// are only shown publicly once approved.
type Story struct {
	ID           string      `json:"id"`
	RegistrantID string      `json:"registrantId,omitempty"`
	Email        string      `json:"email,omitempty"`
	Name         string      `json:"name"`
	Story        string      `json:"story"`
	Source       Source      `json:"source"`
	Status       StoryStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}
