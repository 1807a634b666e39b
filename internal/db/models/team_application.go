// Package models - team_application.go defines the TeamApplication model for volunteer
// groups applying to join, with its embedded member records and status lifecycle.
package models

import (
	"strings"
	"time"
)

// ApplicationStatus represents the review status of a team application
type ApplicationStatus string

const (
	ApplicationStatusSubmitted ApplicationStatus = "submitted"
	ApplicationStatusApproved  ApplicationStatus = "approved"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
)

// OperationalStatus values for a team once it has been reviewed
const (
	OperationalStatusPending = "pending"
	OperationalStatusActive  = "active"
)

// OnboardingStages is the ordered list of steps an approved team moves through.
var OnboardingStages = []string{
	"orientation",
	"training",
	"shadowing",
	"first_presentation",
}

// FirstOnboardingStage returns the stage assigned on approval.
func FirstOnboardingStage() string {
	return OnboardingStages[0]
}

// MinTeamMembers is the smallest team that can be approved.
const MinTeamMembers = 3

// MemberRecord is one person listed on a team application. It is copied into an
// identity account during approval.
type MemberRecord struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	School string `json:"school,omitempty"`
}

// NormalizedEmail returns the trimmed, lower-cased email.
func (m MemberRecord) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(m.Email))
}

// TeamApplication represents a volunteer team's request to join
type TeamApplication struct {
	ID             int64             `db:"id" json:"id"`
	TeamName       string            `db:"team_name" json:"team_name"`
	ContactEmail   string            `db:"contact_email" json:"contact_email"`
	PrimaryContact string            `db:"primary_contact" json:"primary_contact"`
	School         string            `db:"school" json:"school,omitempty"`
	Members        []byte            `db:"members" json:"-"` // raw JSONB; may be NULL
	Status         ApplicationStatus `db:"status" json:"status"`

	OperationalStatus string  `db:"operational_status" json:"operational_status"`
	OnboardingStage   *string `db:"onboarding_stage" json:"onboarding_stage,omitempty"`
	RejectionReason   *string `db:"rejection_reason" json:"rejection_reason,omitempty"`

	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy *string    `db:"approved_by" json:"approved_by,omitempty"`
	RejectedAt *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CanTransitionTo reports whether the application may move to the given status.
// Only submitted applications can be reviewed; approved and rejected are final.
func (a *TeamApplication) CanTransitionTo(next ApplicationStatus) bool {
	if a.Status != ApplicationStatusSubmitted {
		return false
	}
	return next == ApplicationStatusApproved || next == ApplicationStatusRejected
}
