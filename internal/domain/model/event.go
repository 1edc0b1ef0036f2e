// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Decision is a referee's answer to an invitation.
type Decision string

// Decisions. DecisionNone means the invitation was never answered.
const (
	DecisionNone     Decision = ""
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// MaxQualityScore is the top of the editor quality scale.
const MaxQualityScore = 10.0

// ReviewEvent is one referee/manuscript invitation with its lifecycle timestamps.
// Rows are written by the ingestion pipeline and never mutated here.
type ReviewEvent struct {
	ManuscriptID  string     `json:"manuscript_id"`
	RefereeID     string     `json:"referee_id"`
	JournalID     string     `json:"journal_id"`
	InvitedAt     *time.Time `json:"invited_at,omitempty"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	WithdrawnAt   *time.Time `json:"withdrawn_at,omitempty"` // accepted, then withdrew before submitting
	Decision      Decision   `json:"decision,omitempty"`
	QualityScore  *float64   `json:"quality_score,omitempty"`
	ReportLength  *int       `json:"report_length,omitempty"` // words
	ReminderCount int        `json:"reminder_count"`
}

// Validate rejects rows the calculator cannot interpret. Stores call it once
// when rows cross the boundary so the calculator never re-checks.
func (e ReviewEvent) Validate() error {
	if e.RefereeID == "" {
		return fmt.Errorf("%w: missing referee id", ErrInvalidEvent)
	}
	switch e.Decision {
	case DecisionNone, DecisionAccepted, DecisionDeclined:
	default:
		return fmt.Errorf("%w: unknown decision %q on %s", ErrInvalidEvent, e.Decision, e.ManuscriptID)
	}
	if e.ReminderCount < 0 {
		return fmt.Errorf("%w: negative reminder count on %s", ErrInvalidEvent, e.ManuscriptID)
	}
	if e.QualityScore != nil && (*e.QualityScore < 0 || *e.QualityScore > MaxQualityScore) {
		return fmt.Errorf("%w: quality score %.2f out of range on %s", ErrInvalidEvent, *e.QualityScore, e.ManuscriptID)
	}
	if e.ReportLength != nil && *e.ReportLength < 0 {
		return fmt.Errorf("%w: negative report length on %s", ErrInvalidEvent, e.ManuscriptID)
	}
	return nil
}

// Accepted reports whether the referee accepted the invitation.
func (e ReviewEvent) Accepted() bool { return e.Decision == DecisionAccepted }

// Submitted reports whether a report was delivered.
func (e ReviewEvent) Submitted() bool { return e.SubmittedAt != nil }

// AcceptedAt is the response time of an accepted invitation, falling back to
// the invitation time when no response was recorded.
func (e ReviewEvent) AcceptedAt() (time.Time, bool) {
	if !e.Accepted() {
		return time.Time{}, false
	}
	if e.RespondedAt != nil {
		return *e.RespondedAt, true
	}
	if e.InvitedAt != nil {
		return *e.InvitedAt, true
	}
	return time.Time{}, false
}

// Open reports whether the review is accepted but neither submitted nor withdrawn.
func (e ReviewEvent) Open() bool {
	return e.Accepted() && e.SubmittedAt == nil && e.WithdrawnAt == nil
}
